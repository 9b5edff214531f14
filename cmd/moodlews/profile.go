// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package main

import (
	"fmt"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v2"
	"io/ioutil"
)

// defaultProfile is the profile used when --profile is not given.
const defaultProfile = "default"

// profile holds the connection settings for one site, as read from a
// YAML configuration file like
//
//     default:
//       url: https://lms.example.com/moodle
//       token: 0123456789abcdef
//     staging:
//       url: https://staging.example.com
//       username: wsuser
//       insecure: true
type profile struct {
	URL      string `mapstructure:"url"`
	Service  string `mapstructure:"service"`
	Token    string `mapstructure:"token"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Insecure bool   `mapstructure:"insecure"`
}

func loadConfigYaml(filename string) (map[string]interface{}, error) {
	var result map[string]interface{}
	var err error
	var bytes []byte
	bytes, err = ioutil.ReadFile(filename)
	if err == nil {
		err = yaml.Unmarshal(bytes, &result)
	}
	return result, err
}

// loadProfile reads the named profile from a YAML configuration file.
// It is an error for the file to exist but not contain the profile,
// unless the profile is the default one.
func loadProfile(filename, name string) (profile, error) {
	var p profile
	config, err := loadConfigYaml(filename)
	if err != nil {
		return p, err
	}
	if name == "" {
		name = defaultProfile
	}
	section, present := config[name]
	if !present {
		if name == defaultProfile {
			return p, nil
		}
		return p, fmt.Errorf("no profile %q in %v", name, filename)
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           &p,
	})
	if err != nil {
		return p, err
	}
	if err = decoder.Decode(section); err != nil {
		return p, fmt.Errorf("profile %q in %v: %v", name, filename, err)
	}
	return p, nil
}

// merge overlays every non-empty setting of other onto p.
func (p profile) merge(other profile) profile {
	if other.URL != "" {
		p.URL = other.URL
	}
	if other.Service != "" {
		p.Service = other.Service
	}
	if other.Token != "" {
		p.Token = other.Token
	}
	if other.Username != "" {
		p.Username = other.Username
	}
	if other.Password != "" {
		p.Password = other.Password
	}
	if other.Insecure {
		p.Insecure = true
	}
	return p
}
