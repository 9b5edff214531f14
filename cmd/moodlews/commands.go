// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package main

import (
	"errors"
	"fmt"
	"github.com/diffeo/go-moodle/wsclient"
	"github.com/diffeo/go-moodle/wsdata"
	"github.com/urfave/cli"
	"os"
	"path/filepath"
	"strings"
)

// usageError is an error in the command line itself.
type usageError string

func (e usageError) Error() string {
	return string(e)
}

// printJSON writes v to the command output as JSON, followed by a
// newline.
func (a *app) printJSON(v interface{}) error {
	if err := wsdata.Encode(a.out, v); err != nil {
		return err
	}
	_, err := fmt.Fprintln(a.out)
	return err
}

func (a *app) tokenCommand() cli.Command {
	return cli.Command{
		Name:  "token",
		Usage: "log in and print the web service token",
		Action: func(c *cli.Context) error {
			client, err := a.session(c)
			if err != nil {
				return err
			}
			token, _ := client.Token()
			_, err = fmt.Fprintln(a.out, token)
			return err
		},
	}
}

// parseArgs builds web service function arguments from the command
// line.  jsonArgs, if not empty, is a JSON object of arguments.  Each
// of pairs is "key=value"; the key is used exactly as written, so
// "courseids[0]=3" sends the field courseids[0].  Pairs override keys
// from jsonArgs.
func parseArgs(jsonArgs string, pairs []string) (map[string]interface{}, error) {
	args := make(map[string]interface{})
	if jsonArgs != "" {
		if err := wsdata.DecodeBytes([]byte(jsonArgs), &args); err != nil {
			return nil, fmt.Errorf("--json: %v", err)
		}
	}
	for _, pair := range pairs {
		eq := strings.IndexByte(pair, '=')
		if eq <= 0 {
			return nil, fmt.Errorf("argument %q is not key=value", pair)
		}
		args[pair[:eq]] = pair[eq+1:]
	}
	return args, nil
}

// optionalBool returns a pointer to the value of a boolean flag if it
// was given on the command line, or nil if it was not.
func optionalBool(c *cli.Context, name string) *bool {
	if !c.IsSet(name) {
		return nil
	}
	return wsclient.Bool(c.Bool(name))
}

func (a *app) callCommand() cli.Command {
	return cli.Command{
		Name:      "call",
		Usage:     "call a web service function and print its result",
		ArgsUsage: "FUNCTION [key=value...]",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "method",
				Value: "GET",
				Usage: "HTTP method, GET or POST",
			},
			cli.BoolFlag{
				Name:  "raw",
				Usage: "return text fields unformatted (--raw=false to force formatting)",
			},
			cli.BoolFlag{
				Name:  "fileurl",
				Usage: "rewrite file references to downloadable URLs",
			},
			cli.BoolFlag{
				Name:  "filter",
				Usage: "apply text filters to formatted text",
			},
			cli.StringFlag{
				Name:  "json",
				Usage: "function arguments as a JSON object",
			},
		},
		Action: func(c *cli.Context) error {
			if !c.Args().Present() {
				return usageError("call: no function name")
			}
			function := c.Args().First()
			args, err := parseArgs(c.String("json"), c.Args().Tail())
			if err != nil {
				return usageError(err.Error())
			}
			opts := &wsclient.CallOptions{
				Method:  c.String("method"),
				Raw:     optionalBool(c, "raw"),
				FileURL: optionalBool(c, "fileurl"),
				Filter:  optionalBool(c, "filter"),
			}

			client, err := a.session(c)
			if err != nil {
				return err
			}
			result, err := client.Call(a.ctx, function, args, opts)
			if err != nil {
				return err
			}
			return a.printJSON(result)
		},
	}
}

func (a *app) downloadCommand() cli.Command {
	return cli.Command{
		Name:      "download",
		Usage:     "download a file through the web service",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "preview",
				Usage: "download a preview rendition, e.g. \"thumb\"",
			},
			cli.BoolFlag{
				Name:  "offline",
				Usage: "do not record the download as a view",
			},
			cli.StringFlag{
				Name:  "output, o",
				Usage: "write the file here instead of standard output",
			},
		},
		Action: func(c *cli.Context) (err error) {
			if c.NArg() != 1 {
				return usageError("download: exactly one file path is required")
			}
			client, err := a.session(c)
			if err != nil {
				return err
			}

			w := a.out
			if output := c.String("output"); output != "" {
				f, ferr := os.Create(output)
				if ferr != nil {
					return ferr
				}
				defer func() {
					if cerr := f.Close(); err == nil {
						err = cerr
					}
				}()
				w = f
			}
			n, err := client.DownloadTo(a.ctx, w, c.Args().First(), &wsclient.DownloadOptions{
				Preview: c.String("preview"),
				Offline: c.Bool("offline"),
			})
			a.log.WithField("bytes", n).Debug("Download finished")
			return err
		},
	}
}

func (a *app) uploadCommand() cli.Command {
	return cli.Command{
		Name:      "upload",
		Usage:     "upload files to a draft area and print their descriptions",
		ArgsUsage: "FILE...",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "filepath",
				Usage: "directory within the draft area",
			},
			cli.Int64Flag{
				Name:  "itemid",
				Usage: "existing draft area to add to",
			},
		},
		Action: func(c *cli.Context) error {
			if !c.Args().Present() {
				return usageError("upload: no files")
			}
			files := make([]wsclient.File, 0, c.NArg())
			for _, name := range c.Args() {
				f, err := os.Open(name)
				if err != nil {
					return err
				}
				defer f.Close()
				files = append(files, wsclient.File{Name: filepath.Base(name), Content: f})
			}

			client, err := a.session(c)
			if err != nil {
				return err
			}
			uploaded, err := client.Upload(a.ctx, files, &wsclient.UploadOptions{
				FilePath: c.String("filepath"),
				ItemID:   c.Int64("itemid"),
			})
			if err != nil {
				return err
			}
			return a.printJSON(uploaded)
		},
	}
}

// exitCode picks the process exit status for a command error.
func exitCode(err error) int {
	var usage usageError
	if errors.As(err, &usage) {
		return 2
	}
	var cfgErr wsdata.ErrConfiguration
	if errors.As(err, &cfgErr) {
		return 2
	}
	return 1
}
