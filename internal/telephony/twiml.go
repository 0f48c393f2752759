package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"

	"agentsflow-voice/internal/callsession"
)

// TwiML is a minimal Twilio Markup Language response builder.
// It intentionally avoids any provider SDK dependency.
//
// Only the verbs the call flow emits are modeled. encoding/xml escapes all
// structurally significant characters in chardata and attributes, so prompt
// text can never break the document even before sanitization.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Text    string   `xml:",chardata"`
}

type twimlRedirect struct {
	XMLName xml.Name `xml:"Redirect"`
	Method  string   `xml:"method,attr,omitempty"`
	URL     string   `xml:",chardata"`
}

type twimlRecord struct {
	XMLName       xml.Name `xml:"Record"`
	Action        string   `xml:"action,attr,omitempty"`
	Transcribe    bool     `xml:"transcribe,attr"`
	TranscribeURL string   `xml:"transcribeCallback,attr,omitempty"`
	MaxLength     int      `xml:"maxLength,attr,omitempty"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

// fallbackTwiML is a pre-rendered document used when rendering fails.
// A caller must always hear a well-formed response, never a partial one.
const fallbackTwiML = xml.Header + `<Response>
  <Say>We are experiencing a technical difficulty. Goodbye.</Say>
  <Hangup></Hangup>
</Response>`

// RenderTwiML maps a state-machine action to TwiML.
func RenderTwiML(act callsession.Action) (string, error) {
	var r twimlResponse

	switch act.Kind {
	case callsession.ActionSay:
		r.Verbs = append(r.Verbs, twimlSay{Text: act.Text})
	case callsession.ActionSayThenRedirect:
		if act.RedirectPath == "" {
			return "", errors.New("telephony: redirect path required for redirect action")
		}
		r.Verbs = append(r.Verbs,
			twimlSay{Text: act.Text},
			twimlRedirect{Method: "POST", URL: act.RedirectPath},
		)
	case callsession.ActionSayThenHangup:
		r.Verbs = append(r.Verbs,
			twimlSay{Text: act.Text},
			twimlHangup{},
		)
	case callsession.ActionRecord:
		if act.RedirectPath == "" {
			return "", errors.New("telephony: callback path required for record action")
		}
		r.Verbs = append(r.Verbs,
			twimlSay{Text: act.Text},
			twimlRecord{
				Action:        act.RedirectPath,
				Transcribe:    true,
				TranscribeURL: act.RedirectPath,
				MaxLength:     120,
			},
		)
	default:
		return "", errors.New("telephony: unknown action kind")
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderTwiMLOrFallback never fails: a render error yields the fixed
// technical-difficulty document.
func RenderTwiMLOrFallback(act callsession.Action) string {
	out, err := RenderTwiML(act)
	if err != nil {
		return fallbackTwiML
	}
	return out
}
