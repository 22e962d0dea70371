// Package ui renders the read-only bucket/object browser (SPEC_FULL §2
// domain-stack wiring for github.com/a-h/templ): hand-written
// templ.Component/templ.ComponentFunc values, matching how the teacher's
// internal/ui/components.go is written — no .templ codegen step. Adapted
// from the teacher's Silo branding to depot's; ObjectsPage additionally
// carries the bucket sidebar and the current key prefix so the browser
// can walk into "directories" formed by "/" delimiters.
package ui

import (
	"context"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/a-h/templ"
)

// Bucket represents a single S3 bucket for display.
type Bucket struct {
	Name         string
	CreationDate string
}

// Object represents a single object within a bucket for display.
type Object struct {
	Key          string
	Size         int64
	LastModified string
}

func writeAll(w io.Writer, chunks ...string) error {
	for _, c := range chunks {
		if _, err := io.WriteString(w, c); err != nil {
			return err
		}
	}
	return nil
}

// Layout renders a full HTML page with a title and body component.
func Layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := writeAll(w,
			"<!DOCTYPE html><html lang=\"en\"><head><meta charset=\"utf-8\">",
			"<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">",
			"<title>", html.EscapeString(title), "</title>",
			"<link rel=\"stylesheet\" href=\"https://unpkg.com/@picocss/pico@2/css/pico.min.css\">",
			"<script src=\"https://unpkg.com/htmx.org@1.9.12\" crossorigin=\"anonymous\"></script>",
			"</head><body hx-boost=\"true\"><main class=\"container\">",
		); err != nil {
			return err
		}

		if err := body.Render(ctx, w); err != nil {
			return err
		}

		return writeAll(w, "</main></body></html>")
	})
}

func sidebar(buckets []Bucket, active string) string {
	var b strings.Builder
	b.WriteString("<ul>")
	for _, bucket := range buckets {
		class := ""
		if bucket.Name == active {
			class = " aria-current=\"page\""
		}
		fmt.Fprintf(&b, "<li><a href=\"/bucket/%s/\"%s>%s</a></li>",
			html.EscapeString(bucket.Name), class, html.EscapeString(bucket.Name))
	}
	b.WriteString("</ul>")
	return b.String()
}

// BucketsPage renders the list of buckets plus a create-bucket form.
func BucketsPage(buckets []Bucket) templ.Component {
	return Layout("depot browser", templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := writeAll(w,
			"<section><header><h1>Buckets</h1>",
			"<p>Browse buckets and objects served by the depot S3-compatible API.</p></header>",
			"<form hx-post=\"/buckets\" hx-target=\"#create-bucket-result\">",
			"<fieldset role=\"group\">",
			"<input type=\"text\" name=\"name\" placeholder=\"new-bucket-name\" required>",
			"<input type=\"submit\" value=\"Create bucket\">",
			"</fieldset></form><div id=\"create-bucket-result\"></div>",
		); err != nil {
			return err
		}

		if len(buckets) == 0 {
			return writeAll(w, "<p>No buckets found.</p></section>")
		}

		if err := writeAll(w, "<table><thead><tr><th>Name</th><th>Created</th></tr></thead><tbody>"); err != nil {
			return err
		}
		for _, b := range buckets {
			row := fmt.Sprintf("<tr><td><a href=\"/bucket/%s/\">%s</a></td><td>%s</td></tr>",
				html.EscapeString(b.Name), html.EscapeString(b.Name), html.EscapeString(b.CreationDate))
			if err := writeAll(w, row); err != nil {
				return err
			}
		}
		return writeAll(w, "</tbody></table></section>")
	}))
}

// ObjectsPage renders the list of objects under prefix within bucket,
// alongside a sidebar of every bucket for quick navigation.
func ObjectsPage(buckets []Bucket, bucket, prefix string, objects []Object) templ.Component {
	return Layout("depot browser - "+bucket, templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := writeAll(w, "<div class=\"grid\"><aside>", sidebar(buckets, bucket), "</aside><section><header>"); err != nil {
			return err
		}

		title := fmt.Sprintf("<h1>%s</h1>", html.EscapeString(bucket))
		if err := writeAll(w, title, "<p><a href=\"/\">&larr; Back to buckets</a>"); err != nil {
			return err
		}
		if prefix != "" {
			if err := writeAll(w, " / prefix: ", html.EscapeString(prefix)); err != nil {
				return err
			}
		}
		if err := writeAll(w, "</p></header>"); err != nil {
			return err
		}

		if len(objects) == 0 {
			return writeAll(w, "<p>No objects under this prefix.</p></section></div>")
		}

		if err := writeAll(w, "<table><thead><tr><th>Key</th><th>Size (bytes)</th><th>Last Modified</th></tr></thead><tbody>"); err != nil {
			return err
		}
		for _, o := range objects {
			row := fmt.Sprintf("<tr><td>%s</td><td>%d</td><td>%s</td></tr>",
				html.EscapeString(o.Key), o.Size, html.EscapeString(o.LastModified))
			if err := writeAll(w, row); err != nil {
				return err
			}
		}
		return writeAll(w, "</tbody></table></section></div>")
	}))
}
