// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package moodlews provides a command-line client for the Moodle web
// service API.  It can obtain a token, call web service functions,
// and download and upload files.
//
//     moodlews --url https://lms.example.com --username alice token
//     moodlews --url https://lms.example.com --token T call core_webservice_get_site_info
//     moodlews --config sites.yaml --profile staging call core_course_get_courses options[ids][0]=2
//
// Connection settings come from a YAML profile file, then environment
// variables, then flags.  If a token is available from any of these
// it is used as-is; otherwise the username and password are exchanged
// for a token.
package main

import (
	"context"
	"github.com/diffeo/go-moodle/wsclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"io"
	"os"
	"os/signal"
)

// app holds the state shared by every command of one run.
type app struct {
	ctx      context.Context
	log      *logrus.Logger
	out      io.Writer
	registry *prometheus.Registry
	metrics  *wsclient.Metrics
}

func newApp(ctx context.Context, out, errOut io.Writer) *cli.App {
	a := &app{
		ctx: ctx,
		out: out,
		log: &logrus.Logger{
			Out:       errOut,
			Formatter: new(logrus.TextFormatter),
			Hooks:     make(logrus.LevelHooks),
			Level:     logrus.InfoLevel,
		},
	}

	cliApp := cli.NewApp()
	cliApp.Name = "moodlews"
	cliApp.Usage = "call Moodle web service functions"
	cliApp.Writer = out
	cliApp.ErrWriter = errOut
	cliApp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "url",
			EnvVar: "MOODLE_URL",
			Usage:  "root URL of the Moodle site",
		},
		cli.StringFlag{
			Name:   "service",
			EnvVar: "MOODLE_SERVICE",
			Usage:  "web service to request a token for (default moodle_mobile_app)",
		},
		cli.StringFlag{
			Name:   "token",
			EnvVar: "MOODLE_TOKEN",
			Usage:  "existing web service token",
		},
		cli.StringFlag{
			Name:   "username",
			EnvVar: "MOODLE_USERNAME",
			Usage:  "user name to log in as",
		},
		cli.StringFlag{
			Name:   "password",
			EnvVar: "MOODLE_PASSWORD",
			Usage:  "password to log in with",
		},
		cli.StringFlag{
			Name:  "config",
			Usage: "YAML file of connection profiles",
		},
		cli.StringFlag{
			Name:  "profile",
			Value: defaultProfile,
			Usage: "profile to use from the configuration file",
		},
		cli.BoolFlag{
			Name:  "insecure",
			Usage: "do not verify the server's TLS certificate",
		},
		cli.BoolFlag{
			Name:  "debug",
			Usage: "log every request",
		},
		cli.StringFlag{
			Name:  "metrics-file",
			Usage: "write request metrics to this file in Prometheus text format",
		},
	}
	cliApp.Commands = []cli.Command{
		a.tokenCommand(),
		a.callCommand(),
		a.downloadCommand(),
		a.uploadCommand(),
	}
	cliApp.Before = func(c *cli.Context) error {
		if c.GlobalBool("debug") {
			a.log.SetLevel(logrus.DebugLevel)
		}
		if c.GlobalString("metrics-file") != "" {
			a.registry = prometheus.NewRegistry()
			a.metrics = wsclient.NewMetrics("")
			a.registry.MustRegister(a.metrics)
		}
		return nil
	}
	cliApp.After = func(c *cli.Context) error {
		filename := c.GlobalString("metrics-file")
		if a.registry == nil || filename == "" {
			return nil
		}
		return prometheus.WriteToTextfile(filename, a.registry)
	}
	return cliApp
}

// settings collects the connection settings from the profile file
// and the global flags, with flags taking precedence.
func (a *app) settings(c *cli.Context) (profile, error) {
	var p profile
	if filename := c.GlobalString("config"); filename != "" {
		var err error
		p, err = loadProfile(filename, c.GlobalString("profile"))
		if err != nil {
			return p, err
		}
	}
	p = p.merge(profile{
		URL:      c.GlobalString("url"),
		Service:  c.GlobalString("service"),
		Token:    c.GlobalString("token"),
		Username: c.GlobalString("username"),
		Password: c.GlobalString("password"),
		Insecure: c.GlobalBool("insecure"),
	})
	return p, nil
}

// session creates a client and gives it a token.
func (a *app) session(c *cli.Context) (*wsclient.Client, error) {
	p, err := a.settings(c)
	if err != nil {
		return nil, err
	}
	client, err := wsclient.New(wsclient.Config{
		URL:                p.URL,
		Service:            p.Service,
		InsecureSkipVerify: p.Insecure,
		Logger:             a.log,
		Metrics:            a.metrics,
	})
	if err != nil {
		return nil, err
	}

	creds := wsclient.Credentials{Token: p.Token}
	if creds.Token == "" {
		creds.Username = p.Username
		creds.Password = p.Password
	}
	err = client.Authenticate(a.ctx, creds)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := newApp(ctx, os.Stdout, os.Stderr).Run(os.Args)
	if err != nil {
		stop()
		logrus.WithFields(logrus.Fields{
			"err": err,
		}).Error("moodlews failed")
		os.Exit(exitCode(err))
	}
}
