package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/pkg/errors"

	"github.com/fluxcd/imagepromote/pkg/http/httperror"
)

type SlackMsg struct {
	Username    string            `json:"username"`
	Text        string            `json:"text"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

type SlackAttachment struct {
	Fallback string   `json:"fallback,omitempty"`
	Text     string   `json:"text"`
	Author   string   `json:"author_name,omitempty"`
	Color    string   `json:"color,omitempty"`
	Markdown []string `json:"mrkdwn_in,omitempty"`
}

const AlertTemplate = `{{.Classification}}: release {{.Namespace}}/{{.Release}} has failed health checks {{.Consecutive}} times in a row{{with .Failed}} ({{join . ", "}}){{end}}.`

var (
	httpClient = &http.Client{Timeout: 5 * time.Second}

	templateFuncs = template.FuncMap{"join": strings.Join}
)

// Slack posts alerts to a Slack-compatible incoming webhook.
type Slack struct {
	HookURL  string
	Username string
}

func (s Slack) Alert(ctx context.Context, a Alert) error {
	text, err := instantiateTemplate("alert", AlertTemplate, a)
	if err != nil {
		return err
	}
	var attachments []SlackAttachment
	if len(a.Messages) > 0 {
		buf := &bytes.Buffer{}
		fmt.Fprintln(buf, "```")
		for i, msg := range a.Messages {
			name := ""
			if i < len(a.Failed) {
				name = a.Failed[i]
			}
			fmt.Fprintf(buf, "%-12s %s\n", name, msg)
		}
		fmt.Fprintln(buf, "```")
		attachments = append(attachments, SlackAttachment{
			Fallback: strings.Join(a.Messages, "; "),
			Text:     buf.String(),
			Markdown: []string{"text"},
			Color:    "danger",
		})
	}
	return s.notify(ctx, SlackMsg{
		Username:    s.Username,
		Text:        text,
		Attachments: attachments,
	})
}

func (s Slack) notify(ctx context.Context, msg SlackMsg) error {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(msg); err != nil {
		return errors.Wrap(err, "encoding Slack POST request")
	}

	req, err := http.NewRequest("POST", s.HookURL, buf)
	if err != nil {
		return errors.Wrap(err, "constructing Slack HTTP request")
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req.WithContext(ctx))
	if err != nil {
		return errors.Wrap(err, "executing HTTP POST to Slack")
	}
	defer resp.Body.Close()
	return errors.Wrap(httperror.FromResponse(resp), "posting to Slack")
}

func instantiateTemplate(tmplName, tmplStr string, args interface{}) (string, error) {
	tmpl, err := template.New(tmplName).Funcs(templateFuncs).Parse(tmplStr)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, args); err != nil {
		return "", err
	}
	return buf.String(), nil
}
