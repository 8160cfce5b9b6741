// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package render turns a markdown itinerary into a printable document.
package render

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/go-pdf/fpdf"
)

const (
	margin     = 25.0
	bodyLine   = 6.0
	fontFamily = "Arial"
)

var numberedItem = regexp.MustCompile(`^(\d+)\. (.*)$`)

// replacements maps characters the core PDF fonts cannot draw to ASCII.
var replacements = strings.NewReplacer(
	"–", "-",
	"—", "--",
	"‘", "'",
	"’", "'",
	"“", `"`,
	"”", `"`,
	"…", "...",
	"•", "*",
	"™", "TM",
	" ", " ",
	"€", "EUR",
	"£", "GBP",
	"¥", "JPY",
)

// Sanitize applies the character replacement table.
func Sanitize(content string) string {
	return replacements.Replace(strings.ToValidUTF8(content, ""))
}

// PDF renders markdown content to w.
//
// # Description
//
// Supported markup is the subset itineraries use: a "# " title centred on
// the first page, "## " sections each starting a new page, "### "
// subsections, "- " and "* " bullets, "N. " numbered items and inline
// **bold** runs. Pages after the first carry the current section name in
// the header; every page has a "Page N" footer.
func PDF(content string, w io.Writer) error {
	pdf := build(content)
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

type document struct {
	pdf     *fpdf.Fpdf
	tr      func(string) string
	section string
}

func build(content string) *fpdf.Fpdf {
	pdf := fpdf.New("P", "mm", "A4", "")
	d := &document{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}

	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	pdf.SetHeaderFunc(d.header)
	pdf.SetFooterFunc(d.footer)
	pdf.AddPage()

	for _, line := range strings.Split(Sanitize(content), "\n") {
		d.line(strings.TrimSpace(line))
	}
	return pdf
}

func (d *document) header() {
	if d.pdf.PageNo() == 1 {
		return
	}
	d.pdf.SetFont(fontFamily, "I", 8)
	d.pdf.SetTextColor(128, 128, 128)
	d.pdf.CellFormat(0, 10, d.tr(d.section), "", 0, "L", false, 0, "")
	d.pdf.Ln(10)
	d.pdf.SetTextColor(0, 0, 0)
}

func (d *document) footer() {
	d.pdf.SetY(-15)
	d.pdf.SetFont(fontFamily, "I", 8)
	d.pdf.SetTextColor(128, 128, 128)
	d.pdf.CellFormat(0, 10, fmt.Sprintf("Page %d", d.pdf.PageNo()), "", 0, "C", false, 0, "")
	d.pdf.SetTextColor(0, 0, 0)
}

func (d *document) line(line string) {
	pdf := d.pdf
	switch {
	case line == "":
		pdf.Ln(5)

	case strings.HasPrefix(line, "# "):
		pdf.SetFont(fontFamily, "B", 24)
		pdf.CellFormat(0, 20, d.tr(strings.TrimSpace(line[2:])), "", 1, "C", false, 0, "")

	case strings.HasPrefix(line, "## "):
		title := strings.TrimSpace(line[3:])
		d.section = title
		pdf.AddPage()
		pdf.SetFont(fontFamily, "B", 16)
		pdf.CellFormat(0, 15, d.tr(title), "", 1, "L", false, 0, "")

	case strings.HasPrefix(line, "### "):
		pdf.SetFont(fontFamily, "B", 14)
		pdf.Ln(5)
		pdf.CellFormat(0, 10, d.tr(strings.TrimSpace(line[4:])), "", 1, "", false, 0, "")

	case strings.HasPrefix(line, "- "), strings.HasPrefix(line, "* "):
		pdf.SetFont(fontFamily, "", 12)
		pdf.CellFormat(10, bodyLine, d.tr("•"), "", 0, "", false, 0, "")
		pdf.MultiCell(0, bodyLine, d.tr(stripBold(line[2:])), "", "", false)

	case numberedItem.MatchString(line):
		m := numberedItem.FindStringSubmatch(line)
		pdf.SetFont(fontFamily, "", 12)
		pdf.CellFormat(15, bodyLine, m[1]+".", "", 0, "", false, 0, "")
		pdf.MultiCell(0, bodyLine, d.tr(stripBold(m[2])), "", "", false)

	case strings.Contains(line, "**"):
		for i, part := range strings.Split(line, "**") {
			style := ""
			if i%2 == 1 {
				style = "B"
			}
			pdf.SetFont(fontFamily, style, 12)
			pdf.Write(bodyLine, d.tr(part))
		}
		pdf.Ln(bodyLine)

	default:
		pdf.SetFont(fontFamily, "", 12)
		pdf.MultiCell(0, bodyLine, d.tr(line), "", "", false)
	}
}

func stripBold(s string) string {
	return strings.ReplaceAll(s, "**", "")
}
