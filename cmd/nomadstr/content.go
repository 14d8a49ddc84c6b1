package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/culturebridge/nomadstr/pkg/blob"
	"github.com/culturebridge/nomadstr/pkg/content"
	"github.com/culturebridge/nomadstr/pkg/orchestrate"
	"github.com/culturebridge/nomadstr/pkg/publish"
	"github.com/gookit/color"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"
)

// payloadFromFlags builds the typed payload for one content type out of its
// command line flags.
type payloadFromFlags func(cCtx *cli.Context) (content.Payload, error)

var commonContentFlags = []cli.Flag{
	&cli.StringFlag{Name: "title", Required: true},
	&cli.StringSliceFlag{Name: "keyword", Aliases: []string{"k"}},
	&cli.StringSliceFlag{Name: "file", Usage: "attach a file, repeatable"},
	&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "skip the upload confirmation"},
}

func flagsFor(typeName string) []cli.Flag {
	ff := append([]cli.Flag{}, commonContentFlags...)
	switch typeName {
	case "listing":
		ff = append(ff,
			&cli.StringFlag{Name: "description", Required: true},
			&cli.StringFlag{Name: "category", Required: true},
			&cli.StringFlag{Name: "condition"},
			&cli.Float64Flag{Name: "price"},
			&cli.StringFlag{Name: "currency", Value: "EUR"},
			&cli.StringFlag{Name: "location"},
			&cli.StringFlag{Name: "contact"},
		)
	case "work":
		ff = append(ff,
			&cli.StringFlag{Name: "description", Required: true},
			&cli.StringFlag{Name: "category", Required: true},
			&cli.Float64Flag{Name: "payrate"},
			&cli.StringFlag{Name: "currency", Value: "EUR"},
			&cli.StringFlag{Name: "period", Usage: "hour, day, week, month or project"},
			&cli.StringFlag{Name: "location"},
			&cli.BoolFlag{Name: "remote"},
			&cli.StringFlag{Name: "contact"},
		)
	case "contribution":
		ff = append(ff,
			&cli.StringFlag{Name: "body", Usage: "markdown body, or - to read stdin", Required: true},
			&cli.StringFlag{Name: "category", Required: true},
			&cli.StringFlag{Name: "location"},
		)
	case "meetup":
		ff = append(ff,
			&cli.StringFlag{Name: "description", Required: true},
			&cli.TimestampFlag{Name: "start", Layout: "2006-01-02 15:04", Required: true},
			&cli.TimestampFlag{Name: "end", Layout: "2006-01-02 15:04"},
			&cli.StringFlag{Name: "location"},
			&cli.IntFlag{Name: "capacity"},
		)
	}
	return ff
}

func payloadFor(typeName string) payloadFromFlags {
	switch typeName {
	case "listing":
		return func(c *cli.Context) (content.Payload, error) {
			return content.Listing{
				Title:       c.String("title"),
				Description: c.String("description"),
				Category:    c.String("category"),
				Condition:   c.String("condition"),
				Price:       c.Float64("price"),
				Currency:    c.String("currency"),
				Location:    c.String("location"),
				Contact:     c.String("contact"),
				Keywords:    c.StringSlice("keyword"),
			}, nil
		}
	case "work":
		return func(c *cli.Context) (content.Payload, error) {
			return content.WorkOffer{
				Title:       c.String("title"),
				Description: c.String("description"),
				Category:    c.String("category"),
				PayRate:     c.Float64("payrate"),
				Currency:    c.String("currency"),
				PayPeriod:   c.String("period"),
				Location:    c.String("location"),
				Remote:      c.Bool("remote"),
				Contact:     c.String("contact"),
				Keywords:    c.StringSlice("keyword"),
			}, nil
		}
	case "contribution":
		return func(c *cli.Context) (content.Payload, error) {
			body := c.String("body")
			if body == "-" {
				raw, err := io.ReadAll(os.Stdin)
				if err != nil {
					return nil, err
				}
				body = string(raw)
			}
			return content.Contribution{
				Title:    c.String("title"),
				Markdown: body,
				Category: c.String("category"),
				Location: c.String("location"),
				Keywords: c.StringSlice("keyword"),
			}, nil
		}
	case "meetup":
		return func(c *cli.Context) (content.Payload, error) {
			m := content.Meetup{
				Title:       c.String("title"),
				Description: c.String("description"),
				Location:    c.String("location"),
				Capacity:    c.Int("capacity"),
				Keywords:    c.StringSlice("keyword"),
			}
			if t := c.Timestamp("start"); t != nil {
				m.Starts = *t
			}
			if t := c.Timestamp("end"); t != nil {
				m.Ends = *t
			}
			return m, nil
		}
	}
	return nil
}

// contentCommand builds the create/update/delete/show/mine command tree for
// one content type. All four types run the same pipeline; only the flag set
// and payload mapping differ.
func contentCommand(typeName, usage string) *cli.Command {
	build := payloadFor(typeName)
	return &cli.Command{
		Name:  typeName,
		Usage: "manage " + usage,
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "publish a new " + typeName,
				Flags: flagsFor(typeName),
				Action: func(c *cli.Context) error {
					return doContentCreate(c, typeName, build, "")
				},
			},
			{
				Name:  "update",
				Usage: "replace an existing " + typeName,
				Flags: append(flagsFor(typeName),
					&cli.StringFlag{Name: "id", Usage: "document identifier (d tag)", Required: true},
					&cli.StringSliceFlag{Name: "keep", Usage: "attachment ids to keep, omit to keep all"},
					&cli.StringSliceFlag{Name: "remove", Usage: "attachment ids to drop"},
				),
				Action: func(c *cli.Context) error {
					return doContentCreate(c, typeName, build, c.String("id"))
				},
			},
			{
				Name:  "delete",
				Usage: "publish a deletion for a " + typeName,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Usage: "document identifier (d tag)", Required: true},
				},
				Action: func(c *cli.Context) error {
					return doContentDelete(c, typeName)
				},
			},
			{
				Name:  "show",
				Usage: "fetch one " + typeName,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Usage: "document identifier (d tag)", Required: true},
				},
				Action: func(c *cli.Context) error {
					return doContentShow(c, typeName)
				},
			},
			{
				Name:  "mine",
				Usage: "list your " + usage,
				Action: func(c *cli.Context) error {
					return doContentMine(c, typeName)
				},
			},
		},
	}
}

func readFiles(paths []string) (files []blob.FileInput, err error) {
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		mt := mime.TypeByExtension(filepath.Ext(p))
		if mt == "" {
			mt = http.DetectContentType(data)
		}
		files = append(files, blob.FileInput{
			Name:     filepath.Base(p),
			MimeType: mt,
			Data:     data,
		})
	}
	return files, nil
}

func terminalConsent(skip bool) blob.ConsentFunc {
	return func(req blob.ConsentRequest) bool {
		if skip {
			return true
		}
		fmt.Printf("upload %d file(s), %.1f KiB, about %s? [y/N] ",
			req.FileCount, float64(req.TotalSize)/1024, req.EstimatedTime.Round(time.Second))
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		}
		return false
	}
}

func doContentCreate(cCtx *cli.Context, typeName string, build payloadFromFlags, existingDTag string) error {
	env := fromContext(cCtx)
	svc := env.serviceFor(typeName)
	payload, err := build(cCtx)
	if err != nil {
		return err
	}
	files, err := readFiles(cCtx.StringSlice("file"))
	if err != nil {
		return err
	}

	var bar *progressbar.ProgressBar
	if len(files) > 0 {
		bar = progressbar.NewOptions(100,
			progressbar.OptionSetDescription("uploading"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionClearOnFinish(),
		)
	}
	in := orchestrate.Input{
		Payload:      payload,
		Files:        files,
		ExistingDTag: existingDTag,
		Consent:      terminalConsent(cCtx.Bool("yes")),
		OnProgress: func(p orchestrate.Progress) {
			if bar != nil && p.Stage == orchestrate.StageUploading {
				_ = bar.Set(p.Percent)
			}
		},
		OnRelayStatus: func(relay string, status publish.Status) {
			if status == publish.StatusFailed {
				log.D.F("relay %s rejected the event", relay)
			}
		},
	}
	if existingDTag != "" && (cCtx.IsSet("keep") || cCtx.IsSet("remove")) {
		ops := &content.SelectiveOps{Removed: cCtx.StringSlice("remove")}
		if cCtx.IsSet("keep") {
			ops.Kept = cCtx.StringSlice("keep")
		}
		in.Selective = ops
	}

	res := svc.Create(cCtx.Context, in)
	return printResult(typeName, res)
}

func doContentDelete(cCtx *cli.Context, typeName string) error {
	env := fromContext(cCtx)
	svc := env.serviceFor(typeName)
	doc, err := svc.FetchByID(cCtx.Context, cCtx.String("id"))
	if err != nil {
		return err
	}
	if doc == nil {
		return errors.New(typeName + " not found")
	}
	res := svc.Delete(cCtx.Context, doc.ID, doc.Title)
	return printResult(typeName, res)
}

func doContentShow(cCtx *cli.Context, typeName string) error {
	env := fromContext(cCtx)
	doc, err := env.serviceFor(typeName).FetchByID(cCtx.Context, cCtx.String("id"))
	if err != nil {
		return err
	}
	if doc == nil {
		return errors.New(typeName + " not found")
	}
	printDocument(doc)
	return nil
}

func doContentMine(cCtx *cli.Context, typeName string) error {
	env := fromContext(cCtx)
	snap := env.sessions.Snapshot()
	if !snap.Authenticated {
		return errors.New("not signed in")
	}
	docs, err := env.serviceFor(typeName).FetchByAuthor(cCtx.Context, snap.Pubkey)
	if err != nil {
		return err
	}
	for _, d := range docs {
		fmt.Printf("%s  %s  %s\n",
			d.CreatedAt.Format("2006-01-02"),
			color.Cyan.Sprint(d.DTag),
			d.Title)
	}
	return nil
}

func printDocument(d *content.Document) {
	color.Bold.Println(d.Title)
	fmt.Println("id:     ", d.DTag)
	fmt.Println("author: ", d.Pubkey)
	fmt.Println("updated:", d.CreatedAt.Format(time.RFC822))
	for _, k := range []string{"category", "price", "payrate", "location", "start", "end", "capacity"} {
		if v, ok := d.Fields[k]; ok && v != "" {
			fmt.Printf("%s: %s\n", k, v)
		}
	}
	if len(d.Keywords) > 0 {
		fmt.Println("keywords:", strings.Join(d.Keywords, ", "))
	}
	for _, a := range d.Attachments {
		fmt.Printf("attachment %s (%s) %s\n", a.ID, a.Type, a.URL)
	}
	if d.Body != "" {
		fmt.Println()
		fmt.Println(d.Body)
	}
}

func printResult(typeName string, res orchestrate.Result) error {
	switch {
	case res.Success() && res.Unchanged:
		color.Yellow.Printf("%s %s unchanged, nothing to publish\n", typeName, res.DTag)
	case res.Success():
		color.Green.Printf("%s published\n", typeName)
		if res.DTag != "" {
			fmt.Println("id:   ", res.DTag)
		}
		fmt.Println("event:", res.EventID)
		fmt.Println("relays:", strings.Join(res.PublishedRelays, ", "))
		if len(res.FailedRelays) > 0 {
			color.Yellow.Println("failed:", strings.Join(res.FailedRelays, ", "))
		}
	case res.Cancelled:
		color.Yellow.Println("cancelled")
	default:
		return fmt.Errorf("%s %s: %s", typeName, res.Status, res.Err)
	}
	return nil
}
