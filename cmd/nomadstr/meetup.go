package main

import (
	"errors"
	"fmt"

	"github.com/culturebridge/nomadstr/pkg/content"
	"github.com/gookit/color"
	"github.com/urfave/cli/v2"
)

// meetupCommand is the regular content command tree plus attendance.
var meetupCommand = func() *cli.Command {
	cmd := contentCommand("meetup", "meetups and gatherings")
	cmd.Subcommands = append(cmd.Subcommands,
		&cli.Command{
			Name:  "rsvp",
			Usage: "answer a meetup invitation",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "id", Usage: "meetup identifier (d tag)", Required: true},
				&cli.StringFlag{Name: "status", Usage: "accepted, declined or tentative", Required: true},
			},
			Action: doMeetupRSVP,
		},
		&cli.Command{
			Name:  "attendees",
			Usage: "list who answered a meetup",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "id", Usage: "meetup identifier (d tag)", Required: true},
			},
			Action: doMeetupAttendees,
		},
	)
	return cmd
}()

func fetchMeetup(cCtx *cli.Context) (*content.Document, error) {
	env := fromContext(cCtx)
	doc, err := env.meetups.FetchByID(cCtx.Context, cCtx.String("id"))
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errors.New("meetup not found")
	}
	return doc, nil
}

func doMeetupRSVP(cCtx *cli.Context) error {
	env := fromContext(cCtx)
	doc, err := fetchMeetup(cCtx)
	if err != nil {
		return err
	}
	res := env.meetups.RSVP(cCtx.Context, doc, cCtx.String("status"))
	return printResult("rsvp", res)
}

func doMeetupAttendees(cCtx *cli.Context) error {
	env := fromContext(cCtx)
	doc, err := fetchMeetup(cCtx)
	if err != nil {
		return err
	}
	replies, err := env.meetups.FetchRSVPs(cCtx.Context, doc)
	if err != nil {
		return err
	}
	if len(replies) == 0 {
		fmt.Println("no replies yet")
		return nil
	}
	profiles, err := env.profiles.FetchMany(cCtx.Context, attendeePubkeys(replies))
	if err != nil {
		log.D.F("attendee profiles unavailable: %v", err)
		profiles = nil
	}
	for _, r := range replies {
		name := r.Attendee
		if p, ok := profiles[r.Attendee]; ok {
			name = p.ShortName()
		}
		var c color.Color
		switch r.Status {
		case "accepted":
			c = color.Green
		case "declined":
			c = color.Red
		default:
			c = color.Yellow
		}
		fmt.Printf("%-10s %s\n", c.Sprint(r.Status), name)
	}
	return nil
}

func attendeePubkeys(replies []content.RSVPReply) (pks []string) {
	seen := map[string]bool{}
	for _, r := range replies {
		if !seen[r.Attendee] {
			seen[r.Attendee] = true
			pks = append(pks, r.Attendee)
		}
	}
	return
}
