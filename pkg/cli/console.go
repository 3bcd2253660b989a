package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/m-mizutani/knowbot/pkg/model"
)

// console renders replies in a terminal. Streamed text is printed as it
// grows; a spinner runs until the first output.
type console struct {
	w       io.Writer
	spinner *spinner.Spinner
	printed string
}

func newConsole(w io.Writer) *console {
	return &console{
		w:       w,
		spinner: spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w)),
	}
}

func (c *console) begin() {
	c.printed = ""
	c.setStatus("Thinking...")
	c.spinner.Start()
}

func (c *console) end() {
	c.spinner.Stop()
	if c.printed != "" {
		fmt.Fprintln(c.w)
		c.printed = ""
	}
}

func (c *console) setStatus(text string) {
	c.spinner.Lock()
	c.spinner.Suffix = " " + text
	c.spinner.Unlock()
}

func (c *console) SendText(_ context.Context, text string) error {
	c.spinner.Stop()
	fmt.Fprintln(c.w, text)
	return nil
}

func (c *console) SendAttachment(_ context.Context, text string, attachments ...model.Attachment) error {
	c.spinner.Stop()
	if text != "" {
		fmt.Fprintln(c.w, text)
	}
	for _, a := range attachments {
		c.render(a)
	}
	return nil
}

func (c *console) SendTyping(context.Context) error {
	return nil
}

func (c *console) CanStream() bool {
	return true
}

func (c *console) StreamInformative(_ context.Context, text string) error {
	c.setStatus(text)
	return nil
}

func (c *console) StreamUpdate(_ context.Context, text string) error {
	c.spinner.Stop()
	c.write(text)
	return nil
}

func (c *console) StreamFinish(_ context.Context, text string, attachments ...model.Attachment) error {
	c.spinner.Stop()
	c.write(text)
	fmt.Fprintln(c.w)
	c.printed = ""
	for _, a := range attachments {
		c.render(a)
	}
	return nil
}

// write prints the part of text that is not on screen yet.
func (c *console) write(text string) {
	if rest, ok := strings.CutPrefix(text, c.printed); ok {
		fmt.Fprint(c.w, rest)
	} else {
		fmt.Fprint(c.w, "\n"+text)
	}
	c.printed = text
}

type renderedCard struct {
	Text    string `json:"text"`
	Buttons []struct {
		Title string `json:"title"`
	} `json:"buttons"`
	Body []struct {
		Items []struct {
			Text string `json:"text"`
		} `json:"items"`
	} `json:"body"`
}

func (c *console) render(a model.Attachment) {
	raw, err := json.Marshal(a.Content)
	if err != nil {
		return
	}
	var card renderedCard
	if err := json.Unmarshal(raw, &card); err != nil {
		return
	}

	switch a.ContentType {
	case model.ContentTypeHeroCard:
		fmt.Fprintln(c.w, card.Text)
		for _, b := range card.Buttons {
			fmt.Fprintf(c.w, "  • %s\n", b.Title)
		}
	case model.ContentTypeAdaptiveCard:
		for _, block := range card.Body {
			for _, item := range block.Items {
				fmt.Fprintf(c.w, "[reasoning] %s\n", item.Text)
			}
		}
	}
}
