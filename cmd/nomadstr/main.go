// Command nomadstr is a cli client for the nomadstr network: marketplace
// listings, work offers, cultural contributions and meetups published as
// replaceable events, plus encrypted direct messages.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/culturebridge/nomadstr/pkg/blob"
	"github.com/culturebridge/nomadstr/pkg/cache"
	"github.com/culturebridge/nomadstr/pkg/config"
	"github.com/culturebridge/nomadstr/pkg/interrupt"
	"github.com/culturebridge/nomadstr/pkg/message"
	"github.com/culturebridge/nomadstr/pkg/orchestrate"
	"github.com/culturebridge/nomadstr/pkg/publish"
	"github.com/culturebridge/nomadstr/pkg/relays"
	"github.com/culturebridge/nomadstr/pkg/session"
	"github.com/culturebridge/nomadstr/pkg/signer"
	"github.com/culturebridge/nomadstr/pkg/slog"
	"github.com/urfave/cli/v2"
)

var log, chk = slog.New(os.Stderr)

const name = "nomadstr"

const version = "0.1.0"

// appEnv is the wired application, built once in the Before hook and shared
// by every command through the cli metadata map.
type appEnv struct {
	cfg       *config.Config
	sessions  *session.Manager
	resolver  *signer.Resolver
	pool      *relays.Pool
	publisher *publish.Publisher
	store     *cache.Store

	listings      *orchestrate.Service
	work          *orchestrate.Service
	contributions *orchestrate.Service
	meetups       *orchestrate.Service
	profiles      *orchestrate.ProfileService
	dms           *message.Service
}

func fromContext(cCtx *cli.Context) *appEnv {
	return cCtx.App.Metadata["env"].(*appEnv)
}

func (e *appEnv) serviceFor(typeName string) *orchestrate.Service {
	switch typeName {
	case "listing":
		return e.listings
	case "work":
		return e.work
	case "contribution":
		return e.contributions
	case "meetup":
		return e.meetups
	}
	return nil
}

func buildEnv(cfg *config.Config) (e *appEnv, err error) {
	e = &appEnv{cfg: cfg, sessions: session.NewManager()}
	if err = cfg.RestoreSession(e.sessions); err != nil {
		log.W.F("stored identity rejected, starting signed out: %v", err)
	}
	e.resolver = signer.NewResolver(e.sessions)
	e.pool = relays.New(cfg.Relays)
	e.publisher = &publish.Publisher{Transport: e.pool}

	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}
	if e.store, err = cache.Open(filepath.Join(dir, "events")); err != nil {
		log.W.F("event cache unavailable: %v", err)
		e.store = nil
	}

	var store blob.Store
	if cfg.S3 != nil && cfg.S3.Endpoint != "" {
		if store, err = blob.NewS3Store(blob.S3Options{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			UseSSL:    cfg.S3.UseSSL,
			PublicURL: cfg.S3.PublicURL,
		}); err != nil {
			return nil, err
		}
	} else if len(cfg.BlobServers) > 0 {
		store = blob.NewBlossomStore(cfg.BlobServers[0])
	}

	deps := orchestrate.Deps{
		Sessions:  e.sessions,
		Resolver:  e.resolver,
		Query:     e.pool,
		Publisher: e.publisher,
		Uploader:  &blob.Uploader{Store: store},
	}
	if e.store != nil {
		deps.Cache = e.store
	}
	e.listings = orchestrate.NewListingService(deps)
	e.work = orchestrate.NewWorkService(deps)
	e.contributions = orchestrate.NewContributionService(deps)
	e.meetups = orchestrate.NewMeetupService(deps)
	e.profiles = orchestrate.NewProfileService(deps)
	e.dms = message.NewService(e.sessions, e.resolver, e.pool, e.publisher)
	return e, nil
}

func doVersion(_ *cli.Context) error {
	fmt.Println(version)
	return nil
}

func main() {
	app := &cli.App{
		Name:        name,
		Usage:       "a marketplace and community client for nomads",
		Description: "publish listings, work offers, contributions and meetups, and message their authors",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "a", Usage: "profile name"},
			&cli.StringFlag{Name: "relays", Usage: "comma separated relay URLs, overriding the config"},
			&cli.BoolFlag{Name: "V", Usage: "verbose"},
		},
		Commands: []*cli.Command{
			accountCommand,
			profileCommand,
			contentCommand("listing", "marketplace listings"),
			contentCommand("work", "work offers"),
			contentCommand("contribution", "cultural contributions"),
			meetupCommand,
			dmCommand,
			verifyCommand,
			{
				Name:   "version",
				Usage:  "show version",
				Action: doVersion,
			},
		},
		Before: func(cCtx *cli.Context) (err error) {
			if cCtx.Args().Get(0) == "version" {
				return nil
			}
			if cCtx.Bool("V") {
				slog.SetLogLevel(slog.Debug)
			}
			cfg, err := config.Load(cCtx.String("a"))
			if chk.E(err) {
				return err
			}
			if rl := strings.TrimSpace(cCtx.String("relays")); rl != "" {
				cfg.Relays = relays.Config{}
				for _, u := range strings.Split(rl, ",") {
					cfg.Relays[u] = relays.Perms{Read: true, Write: true}
				}
			}
			env, err := buildEnv(cfg)
			if chk.E(err) {
				return err
			}
			interrupt.AddHandler(func() {
				env.pool.Close()
				if env.store != nil {
					env.store.Close()
				}
				os.Exit(1)
			})
			cCtx.App.Metadata = map[string]any{"env": env}
			return nil
		},
		After: func(cCtx *cli.Context) error {
			if env, ok := cCtx.App.Metadata["env"].(*appEnv); ok {
				env.pool.Close()
				if env.store != nil {
					env.store.Close()
				}
			}
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
