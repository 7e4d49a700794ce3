package tiktok

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
	errs "sharetok/pkg/errors"
)

const (
	universalDataAnchor = "__UNIVERSAL_DATA_FOR_REHYDRATION__"
	sigiStateAnchor     = "SIGI_STATE"
)

// sigiMarker finds the assignment that precedes the legacy state object in inline scripts
var sigiMarker = regexp.MustCompile(`SIGI_STATE["']?\]?\s*=\s*`)

// Bootstrap carries the identifiers a signed API call must embed
type Bootstrap struct {
	DeviceID         string
	OdinID           string
	WebIDCreatedTime string
	ABTestVersions   []string
	// MsToken comes from the resolved page's cookies, not the blob; it is optional
	MsToken string
}

// blobSchema lists the one fixed path per required field for a blob layout
type blobSchema struct {
	name             string
	deviceID         string
	odinID           string
	webIDCreatedTime string
	abTestVersions   string
}

var (
	universalSchema = blobSchema{
		name:             "universal",
		deviceID:         `__DEFAULT_SCOPE__.webapp\.app-context.wid`,
		odinID:           `__DEFAULT_SCOPE__.webapp\.app-context.odinId`,
		webIDCreatedTime: `__DEFAULT_SCOPE__.webapp\.app-context.webIdCreatedTime`,
		abTestVersions:   `__DEFAULT_SCOPE__.webapp\.app-context.abTestVersion.versionName`,
	}
	sigiSchema = blobSchema{
		name:             "sigi",
		deviceID:         `AppContext.appContext.wid`,
		odinID:           `AppContext.appContext.odinId`,
		webIDCreatedTime: `AppContext.appContext.webIdCreatedTime`,
		abTestVersions:   `AppContext.appContext.abTestVersion.versionName`,
	}
)

// ExtractBootstrap reads the session identifiers from a resolved page.
// The universal rehydration blob is tried first, then the legacy SIGI state.
func ExtractBootstrap(html []byte) (*Bootstrap, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, errs.BootstrapNotFound("page is not parseable HTML: " + err.Error())
	}

	if blob := anchorText(doc, universalDataAnchor); blob != "" {
		if boot, ok := universalSchema.read(blob); ok {
			return boot, nil
		}
	}

	if blob := anchorText(doc, sigiStateAnchor); blob != "" {
		if boot, ok := sigiSchema.read(blob); ok {
			return boot, nil
		}
	}

	var found *Bootstrap
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		blob := objectAfterMarker(s.Text())
		if blob == "" {
			return true
		}
		if boot, ok := sigiSchema.read(blob); ok {
			found = boot
			return false
		}
		return true
	})
	if found != nil {
		return found, nil
	}

	return nil, errs.BootstrapNotFound("no session blob with device id, odin id, web id time and ab versions")
}

func anchorText(doc *goquery.Document, id string) string {
	return strings.TrimSpace(doc.Find("script#" + id).First().Text())
}

// objectAfterMarker returns the JSON object that follows the SIGI_STATE
// assignment in a script body, or "" when there is none
func objectAfterMarker(script string) string {
	loc := sigiMarker.FindStringIndex(script)
	if loc == nil {
		return ""
	}
	dec := json.NewDecoder(strings.NewReader(script[loc[1]:]))
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return ""
	}
	if len(raw) == 0 || raw[0] != '{' {
		return ""
	}
	return string(raw)
}

func (s blobSchema) read(blob string) (*Bootstrap, bool) {
	if !gjson.Valid(blob) {
		return nil, false
	}
	res := gjson.GetMany(blob, s.deviceID, s.odinID, s.webIDCreatedTime, s.abTestVersions)

	boot := &Bootstrap{
		DeviceID:         res[0].String(),
		OdinID:           res[1].String(),
		WebIDCreatedTime: res[2].String(),
		ABTestVersions:   splitVersions(res[3].String()),
	}
	if boot.DeviceID == "" || boot.OdinID == "" || boot.WebIDCreatedTime == "" || len(boot.ABTestVersions) == 0 {
		return nil, false
	}
	return boot, true
}

func splitVersions(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
