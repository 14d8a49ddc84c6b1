package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/gookit/color"
	"github.com/mdp/qrterminal/v3"
	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/urfave/cli/v2"
)

var accountCommand = &cli.Command{
	Name:  "account",
	Usage: "manage the signed-in identity",
	Subcommands: []*cli.Command{
		{
			Name:   "new",
			Usage:  "generate a fresh keypair and sign in with it",
			Action: doAccountNew,
		},
		{
			Name:  "login",
			Usage: "sign in with an existing key or a remote signer",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "nsec", Usage: "secret key, nsec or hex"},
				&cli.StringFlag{Name: "bunker", Usage: "bunker:// URL or name@domain of a remote signer"},
				&cli.StringFlag{Name: "pubkey", Usage: "expected pubkey of the remote signer"},
			},
			Action: doAccountLogin,
		},
		{
			Name:  "show",
			Usage: "show the signed-in identity",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "qr", Usage: "print the npub as a QR code"},
			},
			Action: doAccountShow,
		},
		{
			Name:   "logout",
			Usage:  "sign out and forget the stored identity",
			Action: doAccountLogout,
		},
	},
}

func doAccountNew(cCtx *cli.Context) error {
	env := fromContext(cCtx)
	s, err := env.sessions.SignUp()
	if chk.E(err) {
		return err
	}
	if err = env.cfg.PersistSession(s); chk.E(err) {
		return err
	}
	nsec, err := nip19.EncodePrivateKey(s.SecretKey)
	if chk.E(err) {
		return err
	}
	color.Green.Println("new identity created and signed in")
	fmt.Println("npub:", s.Npub)
	color.Yellow.Println("nsec:", nsec)
	color.Yellow.Println("back this up somewhere safe, it cannot be recovered")
	return nil
}

func doAccountLogin(cCtx *cli.Context) (err error) {
	env := fromContext(cCtx)
	switch {
	case cCtx.String("nsec") != "":
		_, err = env.sessions.SignInWithSecret(cCtx.String("nsec"))
	case cCtx.String("bunker") != "":
		_, err = env.sessions.SignInWithBunker(cCtx.String("bunker"), cCtx.String("pubkey"))
	default:
		return errors.New("pass --nsec or --bunker")
	}
	if err != nil {
		return err
	}
	s := env.sessions.Snapshot()
	if err = env.cfg.PersistSession(s); chk.E(err) {
		return err
	}
	color.Green.Println("signed in as", s.Npub)
	return nil
}

func doAccountShow(cCtx *cli.Context) error {
	env := fromContext(cCtx)
	s := env.sessions.Snapshot()
	if !s.Authenticated {
		color.Red.Println("not signed in")
		return nil
	}
	fmt.Println("npub:  ", s.Npub)
	fmt.Println("pubkey:", s.Pubkey)
	if s.BunkerURL != "" {
		fmt.Println("signer:", s.BunkerURL)
	} else {
		fmt.Println("signer: local key")
	}
	if cCtx.Bool("qr") {
		qrterminal.GenerateWithConfig("nostr:"+s.Npub, qrterminal.Config{
			Level:     qrterminal.L,
			Writer:    os.Stdout,
			BlackChar: qrterminal.BLACK,
			WhiteChar: qrterminal.WHITE,
		})
	}
	return nil
}

func doAccountLogout(cCtx *cli.Context) error {
	env := fromContext(cCtx)
	env.sessions.SignOut()
	if err := env.cfg.PersistSession(env.sessions.Snapshot()); chk.E(err) {
		return err
	}
	color.Green.Println("signed out")
	return nil
}
