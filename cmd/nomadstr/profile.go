package main

import (
	"errors"
	"fmt"

	"github.com/culturebridge/nomadstr/pkg/content"
	"github.com/culturebridge/nomadstr/pkg/nip05"
	"github.com/gookit/color"
	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/urfave/cli/v2"
)

var profileCommand = &cli.Command{
	Name:  "profile",
	Usage: "show or update profiles",
	Subcommands: []*cli.Command{
		{
			Name:  "get",
			Usage: "fetch a profile, your own when -u is omitted",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "u", Usage: "npub or hex pubkey"},
			},
			Action: doProfileGet,
		},
		{
			Name:  "set",
			Usage: "update your profile",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "name"},
				&cli.StringFlag{Name: "display-name"},
				&cli.StringFlag{Name: "about"},
				&cli.StringFlag{Name: "website"},
				&cli.StringFlag{Name: "picture"},
				&cli.StringFlag{Name: "nip05"},
				&cli.StringFlag{Name: "lud16"},
			},
			Action: doProfileSet,
		},
	},
}

var verifyCommand = &cli.Command{
	Name:      "verify",
	Usage:     "check a nip-05 identifier against a pubkey",
	ArgsUsage: "[name@domain] [npub or hex pubkey]",
	Action:    doVerify,
}

// resolvePubkey accepts an npub or a hex pubkey, defaulting to the signed-in
// user when empty.
func resolvePubkey(cCtx *cli.Context, arg string) (string, error) {
	if arg == "" {
		snap := fromContext(cCtx).sessions.Snapshot()
		if !snap.Authenticated {
			return "", errors.New("not signed in, pass a pubkey")
		}
		return snap.Pubkey, nil
	}
	if prefix, v, err := nip19.Decode(arg); err == nil && prefix == "npub" {
		return v.(string), nil
	}
	if len(arg) == 64 {
		return arg, nil
	}
	return "", fmt.Errorf("cannot parse pubkey %q", arg)
}

func doProfileGet(cCtx *cli.Context) error {
	env := fromContext(cCtx)
	pk, err := resolvePubkey(cCtx, cCtx.String("u"))
	if err != nil {
		return err
	}
	p, err := env.profiles.Fetch(cCtx.Context, pk)
	if err != nil {
		return err
	}
	if p == nil {
		fmt.Println("no profile published")
		return nil
	}
	color.Bold.Println(p.ShortName())
	fmt.Println("npub:", p.Npub())
	if p.About != "" {
		fmt.Println("about:", p.About)
	}
	if p.Website != "" {
		fmt.Println("website:", p.Website)
	}
	if p.NIP05 != "" {
		v := &nip05.Verifier{}
		switch st, _ := v.Verify(cCtx.Context, p.NIP05, pk); st {
		case nip05.Verified:
			fmt.Println("nip05:", p.NIP05, color.Green.Sprint("✓"))
		case nip05.Mismatch:
			fmt.Println("nip05:", p.NIP05, color.Red.Sprint("✗ impersonation"))
		default:
			fmt.Println("nip05:", p.NIP05, color.Yellow.Sprint("unverified"))
		}
	}
	return nil
}

func doProfileSet(cCtx *cli.Context) error {
	env := fromContext(cCtx)
	snap := env.sessions.Snapshot()
	if !snap.Authenticated {
		return errors.New("not signed in")
	}
	// start from the published profile so unset flags keep their values
	p, err := env.profiles.Fetch(cCtx.Context, snap.Pubkey)
	if err != nil {
		log.D.F("no current profile, starting fresh: %v", err)
	}
	if p == nil {
		p = &content.Profile{}
	}
	for flag, dst := range map[string]*string{
		"name":         &p.Name,
		"display-name": &p.DisplayName,
		"about":        &p.About,
		"website":      &p.Website,
		"picture":      &p.Picture,
		"nip05":        &p.NIP05,
		"lud16":        &p.LUD16,
	} {
		if cCtx.IsSet(flag) {
			*dst = cCtx.String(flag)
		}
	}
	res := env.profiles.Publish(cCtx.Context, *p)
	return printResult("profile", res)
}

func doVerify(cCtx *cli.Context) error {
	identifier := cCtx.Args().Get(0)
	if identifier == "" {
		return errors.New("pass an identifier like name@domain")
	}
	pk, err := resolvePubkey(cCtx, cCtx.Args().Get(1))
	if err != nil {
		return err
	}
	v := &nip05.Verifier{}
	st, err := v.Verify(cCtx.Context, identifier, pk)
	if err != nil {
		return err
	}
	switch st {
	case nip05.Verified:
		color.Green.Printf("%s is verified for %s\n", identifier, pk)
	case nip05.Mismatch:
		color.Red.Printf("%s does NOT belong to %s\n", identifier, pk)
	case nip05.Unreachable:
		color.Yellow.Printf("%s could not be checked\n", identifier)
	default:
		return fmt.Errorf("%q is not a valid identifier", identifier)
	}
	return nil
}
