// Package nip05 checks DNS-based identifiers (name@domain) against the
// pubkey that claims them. Verification is advisory: a server that is down,
// slow or lying yields "unverified", never a hard failure, because profile
// rendering must not depend on third-party uptime.
package nip05

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/culturebridge/nomadstr/pkg/slog"
	"github.com/tidwall/gjson"
)

var log, _ = slog.New(os.Stderr)

// Timeout bounds the well-known lookup so a dead identity server cannot
// stall profile loads.
const Timeout = 5 * time.Second

const maxBody = 1 << 20

// Status is the outcome of a verification attempt.
type Status string

const (
	// Verified means the domain vouches for the pubkey.
	Verified Status = "verified"
	// Mismatch means the domain answers but names a different pubkey.
	Mismatch Status = "mismatch"
	// Unreachable means the domain could not be asked.
	Unreachable Status = "unreachable"
	// Malformed means the identifier is not a name@domain pair.
	Malformed Status = "malformed"
)

// Verifier resolves NIP-05 identifiers. The zero value uses the default
// HTTP client; tests inject their own.
type Verifier struct {
	Client *http.Client
}

// Split breaks an identifier into its name and domain parts. A bare domain
// is shorthand for _@domain.
func Split(identifier string) (name, domain string, ok bool) {
	switch parts := strings.Split(identifier, "@"); len(parts) {
	case 1:
		name, domain = "_", parts[0]
	case 2:
		name, domain = parts[0], parts[1]
	default:
		return "", "", false
	}
	if name == "" || domain == "" || !strings.Contains(domain, ".") {
		return "", "", false
	}
	return name, domain, true
}

// Verify checks whether domain's well-known document maps the identifier's
// name to pubkey. Only a transport-level misuse returns an error; lookup
// failures come back as a non-verified status.
func (v *Verifier) Verify(ctx context.Context, identifier, pubkey string) (Status, error) {
	name, domain, ok := Split(identifier)
	if !ok {
		return Malformed, nil
	}
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	u := "https://" + domain + "/.well-known/nostr.json?name=" + url.QueryEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Malformed, err
	}
	client := v.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		log.D.F("nip05 lookup for %s failed: %v", identifier, err)
		return Unreachable, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.D.F("nip05 lookup for %s returned %d", identifier, resp.StatusCode)
		return Unreachable, nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return Unreachable, nil
	}
	got := gjson.GetBytes(body, "names."+escapeGJSONKey(name))
	if !got.Exists() || got.String() == "" {
		return Mismatch, nil
	}
	if !strings.EqualFold(got.String(), pubkey) {
		return Mismatch, nil
	}
	return Verified, nil
}

// escapeGJSONKey protects dots in names from being read as path separators.
func escapeGJSONKey(k string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`)
	return r.Replace(k)
}
