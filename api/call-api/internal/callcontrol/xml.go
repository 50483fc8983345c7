// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_callcontrol

import (
	"encoding/xml"
	"fmt"
)

// Response is the root of every call-control document returned to the
// carrier. Child elements render in declaration order, which the
// carrier executes top to bottom.
type Response struct {
	XMLName xml.Name `xml:"Response"`
	Speak   *Speak   `xml:"Speak,omitempty"`
	Record  *Record  `xml:"Record,omitempty"`
	Stream  *Stream  `xml:"Stream,omitempty"`
	Dial    *Dial    `xml:"Dial,omitempty"`
}

// Speak plays text-to-speech to the caller.
type Speak struct {
	Text string `xml:",chardata"`
}

// Record starts call recording. The carrier posts the lifecycle
// callbacks to the action and callbackUrl endpoints.
type Record struct {
	Action         string `xml:"action,attr"`
	Method         string `xml:"method,attr"`
	CallbackURL    string `xml:"callbackUrl,attr"`
	CallbackMethod string `xml:"callbackMethod,attr"`
	FileFormat     string `xml:"fileFormat,attr"`
	MaxLength      int    `xml:"maxLength,attr"`
	RecordSession  bool   `xml:"recordSession,attr"`
	Redirect       bool   `xml:"redirect,attr"`
}

// Stream opens a bidirectional media WebSocket to the element URL.
type Stream struct {
	Bidirectional bool   `xml:"bidirectional,attr"`
	KeepCallAlive bool   `xml:"keepCallAlive,attr"`
	ContentType   string `xml:"contentType,attr"`
	URL           string `xml:",chardata"`
}

// Dial bridges the call to another number.
type Dial struct {
	Number string `xml:"Number"`
}

// StreamParams carries everything needed to render the answer document
// for a call that should be bridged to the media WebSocket.
type StreamParams struct {
	WebsocketURL string
	Greeting     string
	Record       *RecordParams
}

// RecordParams enables the Record element on the stream document.
type RecordParams struct {
	ActionURL   string
	CallbackURL string
	MaxLength   int
}

// StreamDocument renders the answer document that greets the caller,
// optionally starts recording, and opens the media stream. Recording
// uses redirect="false" so the carrier keeps executing this document
// after the Record element instead of re-fetching the action URL.
func StreamDocument(p StreamParams) (string, error) {
	doc := Response{
		Stream: &Stream{
			Bidirectional: true,
			KeepCallAlive: true,
			ContentType:   "audio/x-mulaw;rate=8000",
			URL:           p.WebsocketURL,
		},
	}
	if p.Greeting != "" {
		doc.Speak = &Speak{Text: p.Greeting}
	}
	if p.Record != nil {
		doc.Record = &Record{
			Action:         p.Record.ActionURL,
			Method:         "POST",
			CallbackURL:    p.Record.CallbackURL,
			CallbackMethod: "POST",
			FileFormat:     "mp3",
			MaxLength:      p.Record.MaxLength,
			RecordSession:  true,
			Redirect:       false,
		}
	}
	return render(doc)
}

// TransferDocument renders the document served when a call has been
// redirected to a human agent: announce the handoff, then dial out.
func TransferDocument(announcement, number string) (string, error) {
	doc := Response{
		Dial: &Dial{Number: number},
	}
	if announcement != "" {
		doc.Speak = &Speak{Text: announcement}
	}
	return render(doc)
}

// EmptyDocument is the acknowledgement returned for callbacks that need
// no call-control instructions.
func EmptyDocument() string {
	return xml.Header + "<Response></Response>"
}

func render(doc Response) (string, error) {
	out, err := xml.MarshalIndent(doc, "", "    ")
	if err != nil {
		return "", fmt.Errorf("failed to render call document: %w", err)
	}
	return xml.Header + string(out), nil
}
