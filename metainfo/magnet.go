package metainfo

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/seedcore-io/torrentd/core"
)

// Magnet is a parsed magnet URI. It always lacks a piece table; the engine
// treats it as awaiting metadata until the corresponding .torrent file is
// supplied out of band.
type Magnet struct {
	InfoHash    core.InfoHash
	DisplayName string
	Trackers    []string
	WebSeeds    []string
}

// InvalidMagnetError indicates a malformed magnet URI.
type InvalidMagnetError struct {
	Reason string
}

func (e *InvalidMagnetError) Error() string {
	return fmt.Sprintf("invalid magnet uri: %s", e.Reason)
}

const magnetPrefix = "magnet:?"

// ParseMagnet parses a magnet URI of the form
// "magnet:?xt=urn:btih:<hash>&dn=...&tr=...".
func ParseMagnet(raw string) (*Magnet, error) {
	if !strings.HasPrefix(raw, magnetPrefix) {
		return nil, &InvalidMagnetError{"missing magnet:? prefix"}
	}
	query, err := url.ParseQuery(raw[len(magnetPrefix):])
	if err != nil {
		return nil, &InvalidMagnetError{fmt.Sprintf("malformed query: %s", err)}
	}

	xts := query["xt"]
	if len(xts) == 0 {
		return nil, &InvalidMagnetError{"missing xt parameter"}
	}

	var hash core.InfoHash
	var found bool
	for _, xt := range xts {
		const btihPrefix = "urn:btih:"
		if !strings.HasPrefix(xt, btihPrefix) {
			continue
		}
		enc := xt[len(btihPrefix):]
		switch len(enc) {
		case 40:
			h, err := core.NewInfoHashFromHex(enc)
			if err != nil {
				return nil, &InvalidMagnetError{fmt.Sprintf("malformed xt hash: %s", err)}
			}
			hash = h
		case 32:
			h, err := core.NewInfoHashFromBase32(enc)
			if err != nil {
				return nil, &InvalidMagnetError{fmt.Sprintf("malformed xt hash: %s", err)}
			}
			hash = h
		default:
			return nil, &InvalidMagnetError{"xt hash must be 40 hex or 32 base32 characters"}
		}
		found = true
		break
	}
	if !found {
		return nil, &InvalidMagnetError{"missing or malformed urn:btih xt parameter"}
	}

	m := &Magnet{
		InfoHash: hash,
		Trackers: query["tr"],
		WebSeeds: query["ws"],
	}
	if dn := query.Get("dn"); dn != "" {
		m.DisplayName = dn
	}
	return m, nil
}

// ToTorrent produces a Torrent descriptor "awaiting metadata" from a parsed
// magnet: it carries the info hash and trackers but no piece or file table.
func (m *Magnet) ToTorrent() *Torrent {
	var announce string
	if len(m.Trackers) > 0 {
		announce = m.Trackers[0]
	}
	var tiers [][]string
	for _, tr := range m.Trackers {
		tiers = append(tiers, []string{tr})
	}
	return &Torrent{
		InfoHash:     m.InfoHash,
		Name:         m.DisplayName,
		Announce:     announce,
		AnnounceList: tiers,
	}
}
