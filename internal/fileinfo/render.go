package fileinfo

import (
	"time"

	"github.com/dl-alexandre/syncapp/internal/types"
	"github.com/dustin/go-humanize"
)

// List is a renderable slice of objects
type List []*FileInfo

func (l List) AsTableRenderer() types.TableRenderer {
	return listTable{files: l}
}

// Lines renders one URL per line
func (l List) Lines() []string {
	out := make([]string, 0, len(l))
	for _, f := range l {
		out = append(out, f.URL)
	}
	return out
}

type listTable struct {
	files List
}

func (t listTable) Headers() []string {
	return []string{"URL", "Size", "Modified", "MD5", "Session"}
}

func (t listTable) Rows() [][]string {
	rows := make([][]string, 0, len(t.files))
	for _, f := range t.files {
		size, modified := "-", "-"
		if f.Stat != nil {
			size = humanize.Bytes(uint64(f.Stat.Size))
			modified = time.Unix(f.Stat.MTime, 0).UTC().Format("2006-01-02 15:04")
		}
		md5 := f.MD5
		if md5 == "" {
			md5 = "-"
		}
		rows = append(rows, []string{f.URL, size, modified, md5, f.ServiceSession})
	}
	return rows
}

func (t listTable) EmptyMessage() string {
	return "No files found."
}
