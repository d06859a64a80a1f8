package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	syncengine "github.com/dl-alexandre/syncapp/internal/sync"
	"github.com/dl-alexandre/syncapp/internal/sync/diff"
	"github.com/dl-alexandre/syncapp/internal/sync/index"
	"github.com/dl-alexandre/syncapp/internal/types"
)

type queueList []index.SyncQueueEntry

func (q queueList) Lines() []string {
	out := make([]string, 0, len(q))
	for _, e := range q {
		out = append(out, e.SrcURL+" "+e.DstURL)
	}
	return out
}

func (q queueList) AsTableRenderer() types.TableRenderer { return q }
func (q queueList) Headers() []string                    { return []string{"ID", "Source", "Destination", "Queued"} }
func (q queueList) EmptyMessage() string                 { return "Sync queue is empty." }

func (q queueList) Rows() [][]string {
	rows := make([][]string, 0, len(q))
	for _, e := range q {
		rows = append(rows, []string{strconv.FormatInt(e.ID, 10), e.SrcURL, e.DstURL, humanize.Time(e.CreatedAt)})
	}
	return rows
}

type configList []index.SyncConfig

func (c configList) Lines() []string {
	out := make([]string, 0, len(c))
	for _, e := range c {
		out = append(out, e.SrcURL+" "+e.DstURL)
	}
	return out
}

func (c configList) AsTableRenderer() types.TableRenderer { return c }
func (c configList) Headers() []string                    { return []string{"ID", "Source", "Destination", "Last run"} }
func (c configList) EmptyMessage() string                 { return "No sync pairs configured." }

func (c configList) Rows() [][]string {
	rows := make([][]string, 0, len(c))
	for _, e := range c {
		rows = append(rows, []string{strconv.FormatInt(e.ID, 10), e.SrcURL, e.DstURL, lastRun(e.LastRun)})
	}
	return rows
}

func lastRun(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return humanize.Time(*t)
}

type blacklistList []index.BlacklistEntry

func (b blacklistList) Lines() []string {
	out := make([]string, 0, len(b))
	for _, e := range b {
		out = append(out, fmt.Sprintf("%d\t%s", e.ID, e.URL))
	}
	return out
}

func (b blacklistList) AsTableRenderer() types.TableRenderer { return b }
func (b blacklistList) Headers() []string                    { return []string{"ID", "URL"} }
func (b blacklistList) EmptyMessage() string                 { return "Blacklist is empty." }

func (b blacklistList) Rows() [][]string {
	rows := make([][]string, 0, len(b))
	for _, e := range b {
		rows = append(rows, []string{strconv.FormatInt(e.ID, 10), e.URL})
	}
	return rows
}

type countList []syncengine.CountResult

func (c countList) Lines() []string {
	out := make([]string, 0, len(c))
	for _, r := range c {
		out = append(out, fmt.Sprintf("%s\t%d", r.URL, r.Count))
	}
	return out
}

func (c countList) AsTableRenderer() types.TableRenderer { return c }
func (c countList) Headers() []string                    { return []string{"URL", "Objects"} }
func (c countList) EmptyMessage() string                 { return "Nothing counted." }

func (c countList) Rows() [][]string {
	rows := make([][]string, 0, len(c))
	for _, r := range c {
		rows = append(rows, []string{r.URL, humanize.Comma(int64(r.Count))})
	}
	return rows
}

// pairView is the JSON shape of a queued divergence
type pairView struct {
	Src  string `json:"src_url"`
	Dst  string `json:"dst_url"`
	Size string `json:"size,omitempty"`
}

type pairList []pairView

func newPairList(pairs []diff.Pair) pairList {
	out := make(pairList, 0, len(pairs))
	for _, p := range pairs {
		v := pairView{Src: p.Src.URL, Dst: p.Dst.URL}
		if p.Src.Stat != nil {
			v.Size = humanize.Bytes(uint64(p.Src.Stat.Size))
		}
		out = append(out, v)
	}
	return out
}

func (p pairList) Lines() []string {
	out := make([]string, 0, len(p))
	for _, v := range p {
		out = append(out, v.Src+" "+v.Dst)
	}
	return out
}

func (p pairList) AsTableRenderer() types.TableRenderer { return p }
func (p pairList) Headers() []string                    { return []string{"Source", "Destination", "Size"} }
func (p pairList) EmptyMessage() string                 { return "Everything is in sync." }

func (p pairList) Rows() [][]string {
	rows := make([][]string, 0, len(p))
	for _, v := range p {
		size := v.Size
		if size == "" {
			size = "-"
		}
		rows = append(rows, []string{v.Src, v.Dst, size})
	}
	return rows
}
