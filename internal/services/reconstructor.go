package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Lllllllleong/docflow/internal/markdown"
	"github.com/Lllllllleong/docflow/internal/models"
	"github.com/mattn/go-runewidth"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdffont "github.com/pdfcpu/pdfcpu/pkg/font"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/text/encoding/charmap"
)

// A4 portrait, in PDF points.
const (
	pageWidth  = 595.0
	pageHeight = 842.0
	pageMargin = 56.0

	bodySize = 11.0
	codeSize = 9.0
	leading  = 1.35
)

var headingSizes = map[int]float64{1: 20, 2: 16, 3: 14, 4: 12, 5: 11, 6: 11}

// ErrUnencodableText is returned when the text holds characters the chosen
// core font cannot draw.
var ErrUnencodableText = errors.New("text cannot be encoded in a core font")

// glyphCells measures text in half-em cells: wide CJK glyphs take two.
var glyphCells = &runewidth.Condition{StrictEmojiNeutral: true}

// MarkdownReconstructor emits the normalized markdown itself.
type MarkdownReconstructor struct{}

func (MarkdownReconstructor) Format() models.OutputFormat { return models.FormatMarkdown }

func (MarkdownReconstructor) Reconstruct(_ context.Context, md string) ([]byte, error) {
	return []byte(markdown.Normalize(md)), nil
}

// PDFReconstructor renders markdown into a paginated A4 PDF. The markdown is
// parsed with goldmark, laid out as wrapped text lines and written through
// pdfcpu's JSON content creation.
type PDFReconstructor struct {
	font string
	mono string
}

// NewPDFReconstructor returns a reconstructor drawing body text in font.
// Core fonts (Helvetica, Times-Roman, Courier) only encode WinAnsi text.
// For other scripts fontFile names a TrueType font; it is installed into
// pdfcpu once and then draws all text, code blocks and tables included.
func NewPDFReconstructor(font, fontFile string) (*PDFReconstructor, error) {
	if fontFile != "" {
		name, err := installFont(fontFile, font)
		if err != nil {
			return nil, err
		}
		return &PDFReconstructor{font: name, mono: name}, nil
	}

	if font == "" {
		font = "Helvetica"
	}
	if pdffont.IsCoreFont(font) {
		return &PDFReconstructor{font: font, mono: "Courier"}, nil
	}
	// Loads fonts installed by earlier runs.
	model.NewDefaultConfiguration()
	if !pdffont.IsUserFont(font) {
		return nil, fmt.Errorf("font %s is neither a core font nor installed; set PDF_FONT_FILE", font)
	}
	return &PDFReconstructor{font: font, mono: font}, nil
}

var (
	installMu sync.Mutex
	installed = map[string]string{}
)

// installFont installs the TrueType file at path and returns the name pdfcpu
// knows it by. Each path is installed once per process.
func installFont(path, name string) (string, error) {
	installMu.Lock()
	defer installMu.Unlock()

	if n, ok := installed[path]; ok {
		return n, nil
	}
	if filepath.Ext(path) != ".ttf" {
		return "", fmt.Errorf("font file %s: only .ttf fonts can be installed", path)
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("font file: %w", err)
	}

	// Sets up the pdfcpu user font directory.
	model.NewDefaultConfiguration()
	started := time.Now().Add(-time.Second)
	if err := api.InstallFonts([]string{path}); err != nil {
		return "", fmt.Errorf("failed to install font %s: %w", path, err)
	}

	// pdfcpu stores the font as <PostScript name>.gob; fall back to PDF_FONT
	// and then the file name.
	if n := newestFont(started); n != "" {
		name = n
	}
	if name == "" || pdffont.IsCoreFont(name) {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if !pdffont.IsUserFont(name) {
		return "", fmt.Errorf("font file %s did not install as %q; set PDF_FONT to its PostScript name", path, name)
	}

	slog.Info("Installed PDF font.", "file", path, "font", name)
	installed[path] = name
	return name, nil
}

// newestFont returns the user font pdfcpu stored last, if that was after since.
func newestFont(since time.Time) string {
	entries, err := os.ReadDir(pdffont.UserFontDir)
	if err != nil {
		return ""
	}
	name := ""
	newest := since
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".gob" {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().After(newest) {
			continue
		}
		newest = info.ModTime()
		name = strings.TrimSuffix(e.Name(), ".gob")
	}
	return name
}

func (r *PDFReconstructor) Format() models.OutputFormat { return models.FormatPDF }

// Reconstruct returns the PDF bytes for md. Text a core font cannot encode
// fails with ErrUnencodableText instead of rendering as blanks.
func (r *PDFReconstructor) Reconstruct(_ context.Context, md string) ([]byte, error) {
	lines := layout([]byte(markdown.Normalize(md)), r.font, r.mono)
	if err := checkEncodable(lines); err != nil {
		return nil, err
	}
	doc := paginate(lines)

	jsonBytes, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal page layout: %w", err)
	}

	tempDir, err := os.MkdirTemp("", "docflow-render-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	jsonPath := filepath.Join(tempDir, "layout.json")
	if err := os.WriteFile(jsonPath, jsonBytes, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write layout: %w", err)
	}
	outPath := filepath.Join(tempDir, "out.pdf")
	if err := api.CreateFile("", jsonPath, outPath, nil); err != nil {
		return nil, fmt.Errorf("failed to render PDF: %w", err)
	}
	out, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read rendered PDF: %w", err)
	}
	return out, nil
}

// checkEncodable rejects lines drawn in a core font that hold runes outside
// WinAnsi; pdfcpu would draw those as spaces.
func checkEncodable(lines []textLine) error {
	for _, l := range lines {
		if !pdffont.IsCoreFont(l.font) {
			continue
		}
		for _, c := range l.text {
			if _, ok := charmap.Windows1252.EncodeRune(c); !ok {
				return fmt.Errorf("%w: %q in %s; set PDF_FONT_FILE to a TrueType font covering it", ErrUnencodableText, c, l.font)
			}
		}
	}
	return nil
}

// textLine is one laid out line of output.
type textLine struct {
	text   string
	font   string
	size   float64
	indent float64
	// gap is extra vertical space above the line.
	gap float64
}

type layoutState struct {
	src   []byte
	font  string
	mono  string
	lines []textLine
}

// layout converts markdown into wrapped lines. Body text uses font; code
// blocks and tables use mono.
func layout(src []byte, font, mono string) []textLine {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	root := md.Parser().Parse(text.NewReader(src))

	s := &layoutState{src: src, font: font, mono: mono}
	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		s.block(n, 0)
	}
	return s.lines
}

func (s *layoutState) add(txt, font string, size, indent, gap float64, wrap bool) {
	if !wrap {
		s.lines = append(s.lines, textLine{text: txt, font: font, size: size, indent: indent, gap: gap})
		return
	}
	for i, l := range wrapText(txt, maxChars(font, size, indent)) {
		if i > 0 {
			gap = 0
		}
		s.lines = append(s.lines, textLine{text: l, font: font, size: size, indent: indent, gap: gap})
	}
}

func (s *layoutState) block(n ast.Node, indent float64) {
	switch node := n.(type) {
	case *ast.Heading:
		size := headingSizes[node.Level]
		s.add(inlineText(node, s.src), boldFont(s.font), size, indent, size*0.8, true)
	case *ast.Paragraph, *ast.TextBlock:
		s.add(inlineText(node, s.src), s.font, bodySize, indent, bodySize*0.5, true)
	case *ast.List:
		s.list(node, indent)
	case *ast.Blockquote:
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			s.block(c, indent+18)
		}
	case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock:
		gap := codeSize * 0.5
		for _, l := range rawLines(node, s.src) {
			for _, w := range hardWrap(l, maxChars(s.mono, codeSize, indent+12)) {
				s.add(w, s.mono, codeSize, indent+12, gap, false)
				gap = 0
			}
		}
	case *east.Table:
		s.table(node, indent)
	case *ast.ThematicBreak:
		s.add("", s.font, bodySize, indent, bodySize*0.5, false)
	default:
		if t := inlineText(node, s.src); t != "" {
			s.add(t, s.font, bodySize, indent, bodySize*0.5, true)
		}
	}
}

func (s *layoutState) list(l *ast.List, indent float64) {
	number := l.Start
	for item := l.FirstChild(); item != nil; item = item.NextSibling() {
		marker := "- "
		if l.IsOrdered() {
			marker = strconv.Itoa(number) + ". "
			number++
		}
		first := true
		for c := item.FirstChild(); c != nil; c = c.NextSibling() {
			if nested, ok := c.(*ast.List); ok {
				s.list(nested, indent+18)
				continue
			}
			if first {
				s.add(marker+inlineText(c, s.src), s.font, bodySize, indent+12, bodySize*0.25, true)
				first = false
				continue
			}
			s.block(c, indent+24)
		}
	}
}

func (s *layoutState) table(t *east.Table, indent float64) {
	gap := bodySize * 0.5
	for row := t.FirstChild(); row != nil; row = row.NextSibling() {
		var cells []string
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			cells = append(cells, inlineText(cell, s.src))
		}
		line := "| " + strings.Join(cells, " | ") + " |"
		font := s.mono
		if _, ok := row.(*east.TableHeader); ok {
			font = boldFont(s.mono)
		}
		for _, w := range wrapText(line, maxChars(s.mono, codeSize, indent)) {
			s.add(w, font, codeSize, indent, gap, false)
			gap = 0
		}
	}
}

// inlineText flattens the inline content below n into one line of text.
func inlineText(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := c.(type) {
		case *ast.Text:
			b.Write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(node.Value)
		case *ast.AutoLink:
			b.Write(node.URL(src))
			return ast.WalkSkipChildren, nil
		case *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return strings.Join(strings.Fields(b.String()), " ")
}

func rawLines(n ast.Node, src []byte) []string {
	lines := n.Lines()
	out := make([]string, 0, lines.Len())
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		out = append(out, strings.TrimRight(string(seg.Value(src)), "\r\n"))
	}
	return out
}

func boldFont(font string) string {
	switch font {
	case "Helvetica", "Courier":
		return font + "-Bold"
	case "Times-Roman":
		return "Times-Bold"
	}
	return font
}

// maxChars estimates how many half-em cells fit on a line. Courier advances
// 0.6em per glyph; proportional fonts average roughly half an em.
func maxChars(font string, size, indent float64) int {
	width := pageWidth - 2*pageMargin - indent
	advance := 0.5
	if strings.HasPrefix(font, "Courier") {
		advance = 0.6
	}
	n := int(width / (size * advance))
	if n < 10 {
		n = 10
	}
	return n
}

// wrapText breaks s at spaces so no line exceeds limit cells. Words longer
// than limit are split.
func wrapText(s string, limit int) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return []string{""}
	}
	var lines []string
	var cur strings.Builder
	curLen := 0
	for _, w := range words {
		for _, part := range hardWrap(w, limit) {
			n := glyphCells.StringWidth(part)
			if curLen > 0 && curLen+1+n > limit {
				lines = append(lines, cur.String())
				cur.Reset()
				curLen = 0
			}
			if curLen > 0 {
				cur.WriteByte(' ')
				curLen++
			}
			cur.WriteString(part)
			curLen += n
		}
	}
	if curLen > 0 {
		lines = append(lines, cur.String())
	}
	return lines
}

// hardWrap cuts s into pieces of at most limit cells.
func hardWrap(s string, limit int) []string {
	if glyphCells.StringWidth(s) <= limit {
		return []string{s}
	}
	var out []string
	var cur strings.Builder
	width := 0
	for _, c := range s {
		w := glyphCells.RuneWidth(c)
		if width > 0 && width+w > limit {
			out = append(out, cur.String())
			cur.Reset()
			width = 0
		}
		cur.WriteRune(c)
		width += w
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// pdfcpu JSON content description.
type pdfFont struct {
	Name string  `json:"name"`
	Size float64 `json:"size"`
}

type pdfText struct {
	Value    string     `json:"value"`
	Position [2]float64 `json:"pos"`
	Font     pdfFont    `json:"font"`
}

type pdfContent struct {
	Text []pdfText `json:"text,omitempty"`
}

type pdfPage struct {
	Content pdfContent `json:"content"`
}

type pdfDocument struct {
	Paper  string             `json:"paper"`
	Origin string             `json:"origin"`
	Pages  map[string]pdfPage `json:"pages"`
}

// paginate positions lines top to bottom, starting a new page when the
// bottom margin is reached. There is always at least one page.
func paginate(lines []textLine) pdfDocument {
	doc := pdfDocument{Paper: "A4P", Origin: "LowerLeft", Pages: map[string]pdfPage{}}

	pageNo := 1
	var current []pdfText
	y := pageHeight - pageMargin
	top := true

	flush := func() {
		doc.Pages[strconv.Itoa(pageNo)] = pdfPage{Content: pdfContent{Text: current}}
		pageNo++
		current = nil
		y = pageHeight - pageMargin
		top = true
	}

	for _, l := range lines {
		step := l.size * leading
		if !top {
			step += l.gap
		}
		if y-step < pageMargin && !top {
			flush()
			step = l.size * leading
		}
		y -= step
		top = false
		if strings.TrimSpace(l.text) == "" {
			continue
		}
		current = append(current, pdfText{
			Value:    l.text,
			Position: [2]float64{pageMargin + l.indent, y},
			Font:     pdfFont{Name: l.font, Size: l.size},
		})
	}
	flush()
	return doc
}
