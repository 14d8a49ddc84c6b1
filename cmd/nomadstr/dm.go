package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gookit/color"
	"github.com/urfave/cli/v2"
)

var dmCommand = &cli.Command{
	Name:  "dm",
	Usage: "encrypted direct messages",
	Subcommands: []*cli.Command{
		{
			Name:      "send",
			Usage:     "send a message",
			ArgsUsage: "[message text]",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "u", Usage: "recipient npub or hex pubkey", Required: true},
				&cli.StringFlag{Name: "about", Usage: "document the message is about (kind:pubkey:dtag)"},
			},
			Action: doDMSend,
		},
		{
			Name:   "list",
			Usage:  "list conversations",
			Action: doDMList,
		},
		{
			Name:  "history",
			Usage: "show the conversation with one peer",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "u", Usage: "peer npub or hex pubkey", Required: true},
			},
			Action: doDMHistory,
		},
	},
}

func doDMSend(cCtx *cli.Context) error {
	env := fromContext(cCtx)
	body := strings.Join(cCtx.Args().Slice(), " ")
	if body == "" {
		return errors.New("pass the message text")
	}
	peer, err := resolvePubkey(cCtx, cCtx.String("u"))
	if err != nil {
		return err
	}
	m, err := env.dms.Send(cCtx.Context, peer, body, cCtx.String("about"))
	if err != nil {
		return err
	}
	color.Green.Println("sent", m.ID)
	return nil
}

func doDMList(cCtx *cli.Context) error {
	env := fromContext(cCtx)
	cs, err := env.dms.Conversations(cCtx.Context)
	if err != nil {
		return err
	}
	if len(cs) == 0 {
		fmt.Println("no conversations")
		return nil
	}
	var pks []string
	for _, c := range cs {
		pks = append(pks, c.Peer)
	}
	profiles, err := env.profiles.FetchMany(cCtx.Context, pks)
	if err != nil {
		log.D.F("peer profiles unavailable: %v", err)
	}
	for _, c := range cs {
		name := c.Peer
		if p, ok := profiles[c.Peer]; ok {
			name = p.ShortName()
		}
		preview := c.Last.Content
		if len(preview) > 60 {
			preview = preview[:57] + "..."
		}
		fmt.Printf("%s  %s  %s\n",
			c.Last.At.Format("2006-01-02 15:04"),
			color.Cyan.Sprint(name),
			preview)
	}
	return nil
}

func doDMHistory(cCtx *cli.Context) error {
	env := fromContext(cCtx)
	peer, err := resolvePubkey(cCtx, cCtx.String("u"))
	if err != nil {
		return err
	}
	ms, err := env.dms.History(cCtx.Context, peer)
	if err != nil {
		return err
	}
	for _, m := range ms {
		who := color.Cyan.Sprint("them")
		if m.Sent {
			who = color.Green.Sprint("you ")
		}
		fmt.Printf("%s %s %s\n", m.At.Format("2006-01-02 15:04"), who, m.Content)
		if m.Context != "" {
			fmt.Printf("                      about %s\n", m.Context)
		}
	}
	return nil
}
