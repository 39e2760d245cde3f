// ABOUTME: TwiML document builder for voice webhook responses
// ABOUTME: Say, Gather, Pause, Hangup, Redirect and Connect/ConversationRelay verbs

package twilio

import (
	"encoding/xml"
	"fmt"
)

// ContentTypeXML is the content type of rendered TwiML.
const ContentTypeXML = "application/xml"

// Speech selects the text-to-speech voice and language.
type Speech struct {
	Voice    string
	Language string
}

// Say speaks text.
type Say struct {
	XMLName  xml.Name `xml:"Say"`
	Voice    string   `xml:"voice,attr,omitempty"`
	Language string   `xml:"language,attr,omitempty"`
	Text     string   `xml:",chardata"`
}

// Gather collects speech and posts the transcript to Action.
type Gather struct {
	XMLName       xml.Name `xml:"Gather"`
	Input         string   `xml:"input,attr,omitempty"`
	Action        string   `xml:"action,attr,omitempty"`
	Method        string   `xml:"method,attr,omitempty"`
	SpeechTimeout string   `xml:"speechTimeout,attr,omitempty"`
	Language      string   `xml:"language,attr,omitempty"`
	Verbs         []any
}

// Pause waits for Length seconds.
type Pause struct {
	XMLName xml.Name `xml:"Pause"`
	Length  int      `xml:"length,attr,omitempty"`
}

// Hangup ends the call.
type Hangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

// Redirect continues the call at URL.
type Redirect struct {
	XMLName xml.Name `xml:"Redirect"`
	Method  string   `xml:"method,attr,omitempty"`
	URL     string   `xml:",chardata"`
}

// ConversationRelay streams the call to a WebSocket as text.
type ConversationRelay struct {
	XMLName         xml.Name `xml:"ConversationRelay"`
	URL             string   `xml:"url,attr"`
	WelcomeGreeting string   `xml:"welcomeGreeting,attr,omitempty"`
	Voice           string   `xml:"voice,attr,omitempty"`
	Language        string   `xml:"language,attr,omitempty"`
}

// Connect wraps a ConversationRelay.
type Connect struct {
	XMLName xml.Name `xml:"Connect"`
	Verbs   []any
}

// Response is a TwiML document under construction.
type Response struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any
}

// NewResponse starts an empty document.
func NewResponse() *Response {
	return &Response{}
}

// Say appends a <Say>.
func (r *Response) Say(s Speech, text string) *Response {
	r.Verbs = append(r.Verbs, sayVerb(s, text))
	return r
}

// GatherSpeech appends a speech <Gather> that speaks prompt and posts to action.
func (r *Response) GatherSpeech(s Speech, action, prompt string) *Response {
	g := Gather{
		Input:         "speech",
		Action:        action,
		Method:        "POST",
		SpeechTimeout: "auto",
		Language:      s.Language,
	}
	if prompt != "" {
		g.Verbs = append(g.Verbs, sayVerb(s, prompt))
	}
	r.Verbs = append(r.Verbs, g)
	return r
}

// Pause appends a <Pause>.
func (r *Response) Pause(seconds int) *Response {
	r.Verbs = append(r.Verbs, Pause{Length: seconds})
	return r
}

// Hangup appends a <Hangup>.
func (r *Response) Hangup() *Response {
	r.Verbs = append(r.Verbs, Hangup{})
	return r
}

// Redirect appends a POST <Redirect>.
func (r *Response) Redirect(url string) *Response {
	r.Verbs = append(r.Verbs, Redirect{Method: "POST", URL: url})
	return r
}

// ConversationRelay appends <Connect><ConversationRelay/></Connect>.
func (r *Response) ConversationRelay(cr ConversationRelay) *Response {
	r.Verbs = append(r.Verbs, Connect{Verbs: []any{cr}})
	return r
}

// Render returns the document with an XML header.
func (r *Response) Render() ([]byte, error) {
	body, err := xml.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("rendering twiml: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}

func sayVerb(s Speech, text string) Say {
	return Say{Voice: s.Voice, Language: s.Language, Text: text}
}
