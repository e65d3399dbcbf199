package browse

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/OpenPrinting/goipp"
	"github.com/google/uuid"
)

// dropArtefact deletes the entry's temp description file, if any.
func (e *Entry) dropArtefact() {
	if e.ArtefactPath != "" {
		_ = os.Remove(e.ArtefactPath)
		e.ArtefactPath = ""
	}
}

// ensureArtefact makes sure a direct-printer entry has its description
// artefact on disk, regenerating it when the previous one was already
// consumed. Shared remote queues carry their description on the server
// and need nothing here.
func (d *Daemon) ensureArtefact(ctx context.Context, e *Entry) {
	if e.DescSource == DescriptionRaw || e.ArtefactPath != "" {
		return
	}

	if attrs, err := d.fetchAttrs(ctx, e.URI); err == nil {
		if path, err := writeArtefact(generatePPD(attrs, e), ".ppd"); err == nil {
			e.DescSource = DescriptionPPDFile
			e.ArtefactPath = path
			return
		}
	} else {
		DebugCtx("could not fetch printer attributes, falling back to interface script",
			"uri", e.URI, "err", err)
	}

	path, err := writeArtefact(generateInterfaceScript(d.opts.IPPFilterPath, e), "")
	if err != nil {
		WarnCtx("could not write interface script", "name", e.Name, "err", err)
		return
	}
	e.DescSource = DescriptionScript
	e.ArtefactPath = path
}

func writeArtefact(data []byte, suffix string) (string, error) {
	path := filepath.Join(os.TempDir(), "printbrowsed-"+uuid.New().String()+suffix)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

// generatePPD synthesises a minimal PPD from a printer's advertised
// attributes. The result only has to be good enough for the local print
// service to accept the queue and pick a filter chain.
func generatePPD(attrs goipp.Attributes, e *Entry) []byte {
	makeModel := firstString(attrs, "printer-make-and-model")
	if makeModel == "" {
		makeModel = e.MakeModel
	}
	if makeModel == "" {
		makeModel = "Generic IPP Printer"
	}
	manufacturer := makeModel
	if i := strings.IndexByte(manufacturer, ' '); i > 0 {
		manufacturer = manufacturer[:i]
	}

	formats := allStrings(attrs, "document-format-supported")
	if len(formats) == 0 {
		formats = e.PDLs
	}

	var b strings.Builder
	b.WriteString("*PPD-Adobe: \"4.3\"\n")
	b.WriteString("*FormatVersion: \"4.3\"\n")
	b.WriteString("*FileVersion: \"1.0\"\n")
	b.WriteString("*LanguageVersion: English\n")
	b.WriteString("*LanguageEncoding: ISOLatin1\n")
	fmt.Fprintf(&b, "*Manufacturer: \"%s\"\n", manufacturer)
	fmt.Fprintf(&b, "*ModelName: \"%s\"\n", makeModel)
	fmt.Fprintf(&b, "*NickName: \"%s, driverless\"\n", makeModel)
	fmt.Fprintf(&b, "*ShortNickName: \"%s\"\n", makeModel)
	b.WriteString("*PCFileName: \"ippprt.ppd\"\n")
	b.WriteString("*LanguageLevel: \"3\"\n")

	if hasBool(attrs, "color-supported") {
		b.WriteString("*ColorDevice: True\n")
		b.WriteString("*DefaultColorSpace: RGB\n")
	} else {
		b.WriteString("*ColorDevice: False\n")
		b.WriteString("*DefaultColorSpace: Gray\n")
	}

	for _, f := range formats {
		switch strings.ToLower(f) {
		case "application/pdf":
			b.WriteString("*cupsFilter2: \"application/vnd.cups-pdf application/pdf 0 -\"\n")
		case "application/postscript":
			b.WriteString("*cupsFilter2: \"application/vnd.cups-postscript application/postscript 0 -\"\n")
		case "image/pwg-raster":
			b.WriteString("*cupsFilter2: \"image/pwg-raster image/pwg-raster 0 -\"\n")
		}
	}

	sides := allStrings(attrs, "sides-supported")
	for _, s := range sides {
		if strings.HasPrefix(s, "two-sided") {
			b.WriteString("*OpenUI *Duplex/2-Sided Printing: PickOne\n")
			b.WriteString("*DefaultDuplex: None\n")
			b.WriteString("*Duplex None/Off: \"\"\n")
			b.WriteString("*Duplex DuplexNoTumble/Long-Edge: \"\"\n")
			b.WriteString("*Duplex DuplexTumble/Short-Edge: \"\"\n")
			b.WriteString("*CloseUI: *Duplex\n")
			break
		}
	}

	return []byte(b.String())
}

// generateInterfaceScript emits a System V interface script that pipes
// jobs through the IPP filter with the printer's best PDL and model.
func generateInterfaceScript(filter string, e *Entry) []byte {
	pdl := "application/vnd.hp-PCL"
loop:
	for _, p := range e.PDLs {
		for _, u := range usablePDLs {
			if strings.EqualFold(p, u) {
				pdl = u
				break loop
			}
		}
	}
	model := e.MakeModel
	if model == "" {
		model = "Generic IPP Printer"
	}

	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	b.WriteString("# Printer interface script generated by printbrowsed\n")
	fmt.Fprintf(&b, "%s \"$1\" \"$2\" \"$3\" \"$4\" \"$5 output-format=%s make-and-model=%s\" \"$6\"\n",
		filter, pdl, strings.ReplaceAll(model, " ", "-"))
	return []byte(b.String())
}

func firstString(attrs goipp.Attributes, name string) string {
	for _, a := range attrs {
		if a.Name == name && len(a.Values) > 0 {
			return a.Values[0].V.String()
		}
	}
	return ""
}

func allStrings(attrs goipp.Attributes, name string) []string {
	for _, a := range attrs {
		if a.Name != name {
			continue
		}
		out := make([]string, 0, len(a.Values))
		for _, v := range a.Values {
			out = append(out, v.V.String())
		}
		return out
	}
	return nil
}

func hasBool(attrs goipp.Attributes, name string) bool {
	for _, a := range attrs {
		if a.Name == name && len(a.Values) > 0 {
			if v, ok := a.Values[0].V.(goipp.Boolean); ok {
				return bool(v)
			}
		}
	}
	return false
}
