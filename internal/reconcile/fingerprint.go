package reconcile

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/mmcdole/reelsync/internal/addon"
	"github.com/mmcdole/reelsync/internal/identity"
)

// fingerprintSpace namespaces alternate ids away from title hashes
var fingerprintSpace = uuid.NewMD5(uuid.NameSpaceURL, []byte(identity.Scheme+":stream"))

// Fingerprint identifies a candidate within a title. Equal fingerprints are the
// same source, so the alternate's id is the fingerprint itself.
func Fingerprint(externalID string, s addon.Stream) uuid.UUID {
	data := externalID + "\x00" + GroupKey(s) + "\x00" + distinguisher(s)
	return uuid.NewMD5(fingerprintSpace, []byte(data))
}

// GroupKey returns the binge group the addon assigned, if any
func GroupKey(s addon.Stream) string {
	return strings.TrimSpace(s.BingeGroup)
}

// distinguisher prefers the filename, then the swarm file, then the labels
func distinguisher(s addon.Stream) string {
	if name := normalize(s.Filename); name != "" {
		return "file:" + name
	}
	if s.InfoHash != "" {
		ref := "swarm:" + strings.ToLower(s.InfoHash)
		if s.FileIdx != nil {
			ref += ":" + strconv.Itoa(*s.FileIdx)
		}
		return ref
	}
	return "label:" + normalize(s.Name) + "\x00" + normalize(s.Label()) + "\x00" + s.URL
}

// normalize folds case and collapses whitespace
func normalize(s string) string {
	// Casers are stateful, so each call gets its own
	folded := cases.Fold().String(norm.NFC.String(s))
	return strings.Join(strings.Fields(folded), " ")
}

// displayName builds an alternate's name from the addon's name and label
func displayName(s addon.Stream) string {
	name := strings.Join(strings.Fields(s.Name), " ")
	label := strings.Join(strings.Fields(s.Label()), " ")
	switch {
	case name == "" && label == "":
		return strings.TrimSpace(s.Filename)
	case name == "" || name == label:
		return label
	case label == "":
		return name
	default:
		return name + " - " + label
	}
}
