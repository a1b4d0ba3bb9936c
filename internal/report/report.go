package report

import (
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/barke-deploy/barke/internal/reconcile"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
)

// Line is one row of the upload summary: a single file, or a folded group
// when Group is true.
type Line struct {
	Path  string
	Size  int64
	Files int
	Group bool
}

// Summary is the rendered-ready view of an upload set.
type Summary struct {
	Lines      []Line
	TotalFiles int
	TotalSize  int64
}

// Build folds files under any of prefixes into one "prefix/**" line placed
// where the group's first file appears. Each file belongs to the first
// matching prefix in configured order. Output order follows files.
func Build(files []reconcile.Candidate, prefixes []string) Summary {
	groups := normalizePrefixes(prefixes)

	var s Summary
	index := make(map[string]int, len(groups))
	for _, f := range files {
		s.TotalFiles++
		s.TotalSize += f.Size

		group, ok := groupOf(f.RelativePath, groups)
		if !ok {
			s.Lines = append(s.Lines, Line{Path: f.RelativePath, Size: f.Size, Files: 1})
			continue
		}
		if i, seen := index[group]; seen {
			s.Lines[i].Size += f.Size
			s.Lines[i].Files++
			continue
		}
		index[group] = len(s.Lines)
		s.Lines = append(s.Lines, Line{Path: group + "/**", Size: f.Size, Files: 1, Group: true})
	}
	return s
}

// Render writes the summary as a borderless table followed by the total.
func (s Summary) Render(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "FILES TO UPLOAD:"); err != nil {
		return err
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Path", "Files", "Size"})
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT})
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)

	for _, l := range s.Lines {
		table.Append([]string{"- " + l.Path, strconv.Itoa(l.Files), humanize.IBytes(uint64(l.Size))})
	}
	table.Append([]string{fmt.Sprintf("TOTAL (%d files)", s.TotalFiles), strconv.Itoa(s.TotalFiles), humanize.IBytes(uint64(s.TotalSize))})

	table.Render()
	return nil
}

func groupOf(rel string, groups []string) (string, bool) {
	for _, g := range groups {
		if rel == g || strings.HasPrefix(rel, g+"/") {
			return g, true
		}
	}
	return "", false
}

func normalizePrefixes(prefixes []string) []string {
	seen := mapset.NewThreadUnsafeSet[string]()
	var out []string
	for _, p := range prefixes {
		p = strings.TrimSpace(strings.ReplaceAll(p, `\`, "/"))
		p = strings.TrimPrefix(p, "./")
		p = strings.Trim(path.Clean("/"+p), "/")
		if p == "" || p == "." {
			continue
		}
		if seen.Add(p) {
			out = append(out, p)
		}
	}
	return out
}
