package pdfobj

import (
	"bytes"
	"compress/zlib"
	"crypto/md5"
	"fmt"
	"sort"
	"time"
)

// Updater builds an incremental update section. The original bytes are
// never modified; new and replaced objects are appended after them
// together with a fresh cross-reference section whose trailer chains
// back via /Prev.
type Updater struct {
	file    *File
	nextNum int
	objects map[int]Object
	order   []int
}

// NewUpdater prepares an incremental update for f.
func NewUpdater(f *File) *Updater {
	return &Updater{
		file:    f,
		nextNum: int(f.Size()),
		objects: make(map[int]Object),
	}
}

// Add appends a new indirect object and returns its reference.
func (u *Updater) Add(obj Object) Ref {
	num := u.nextNum
	u.nextNum++
	u.objects[num] = obj
	u.order = append(u.order, num)
	return Ref{Num: num}
}

// Replace overrides an existing object with a new body. The reference
// keeps generation 0; incremental updates shadow by object number.
func (u *Updater) Replace(ref Ref, obj Object) {
	if _, exists := u.objects[ref.Num]; !exists {
		u.order = append(u.order, ref.Num)
	}
	u.objects[ref.Num] = obj
}

// Dirty reports whether any object was added or replaced.
func (u *Updater) Dirty() bool { return len(u.objects) > 0 }

// Bytes serializes the update: original file, appended object bodies,
// then an xref section in the same style (table or stream) as the
// original file's newest section.
func (u *Updater) Bytes() ([]byte, error) {
	if len(u.objects) == 0 {
		return u.file.Data(), nil
	}

	var buf bytes.Buffer
	buf.Write(u.file.Data())
	if buf.Len() > 0 && buf.Bytes()[buf.Len()-1] != '\n' {
		buf.WriteByte('\n')
	}

	offsets := make(map[int]int64, len(u.objects))
	nums := append([]int(nil), u.order...)
	sort.Ints(nums)
	for _, num := range nums {
		offsets[num] = int64(buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n", num)
		buf.Write(Serialize(u.objects[num]))
		buf.WriteString("\nendobj\n")
	}

	trailer := u.newTrailer()
	if u.file.XRefIsStream() {
		return u.writeXRefStream(&buf, nums, offsets, trailer)
	}
	return u.writeXRefTable(&buf, nums, offsets, trailer)
}

func (u *Updater) newTrailer() Dict {
	old := u.file.Trailer()
	trailer := Dict{
		"Size": Integer(u.nextNum),
		"Prev": Integer(u.file.StartXRef()),
		"Root": old["Root"],
	}
	if info, ok := old["Info"]; ok {
		trailer["Info"] = info
	}
	trailer["ID"] = u.fileID(old)
	return trailer
}

// fileID keeps the original first ID half and derives a new second
// half from the update contents.
func (u *Updater) fileID(old Dict) Array {
	sum := md5.New()
	fmt.Fprintf(sum, "%d", time.Now().UnixNano())
	for _, num := range u.order {
		sum.Write(Serialize(u.objects[num]))
	}
	second := String(sum.Sum(nil))

	if prev, ok := old["ID"].(Array); ok && len(prev) == 2 {
		if first, ok := prev[0].(String); ok {
			return Array{first, second}
		}
	}
	return Array{second, second}
}

func (u *Updater) writeXRefTable(buf *bytes.Buffer, nums []int, offsets map[int]int64, trailer Dict) ([]byte, error) {
	xrefStart := int64(buf.Len())
	buf.WriteString("xref\n")
	for _, sub := range subsections(nums) {
		fmt.Fprintf(buf, "%d %d\n", sub.start, sub.count)
		for n := sub.start; n < sub.start+sub.count; n++ {
			fmt.Fprintf(buf, "%010d %05d n \n", offsets[n], 0)
		}
	}
	buf.WriteString("trailer\n")
	buf.Write(Serialize(trailer))
	fmt.Fprintf(buf, "\nstartxref\n%d\n%%%%EOF\n", xrefStart)
	return buf.Bytes(), nil
}

func (u *Updater) writeXRefStream(buf *bytes.Buffer, nums []int, offsets map[int]int64, trailer Dict) ([]byte, error) {
	xrefNum := u.nextNum
	trailer["Size"] = Integer(xrefNum + 1)
	xrefStart := int64(buf.Len())

	// Rows for the updated objects plus the xref stream itself.
	all := append(append([]int(nil), nums...), xrefNum)
	allOffsets := make(map[int]int64, len(all))
	for n, off := range offsets {
		allOffsets[n] = off
	}
	allOffsets[xrefNum] = xrefStart

	const w2 = 5 // offset field width, covers files up to 1 TiB
	var rows bytes.Buffer
	var index Array
	for _, sub := range subsections(all) {
		index = append(index, Integer(sub.start), Integer(sub.count))
		for n := sub.start; n < sub.start+sub.count; n++ {
			rows.WriteByte(1)
			off := allOffsets[n]
			for shift := (w2 - 1) * 8; shift >= 0; shift -= 8 {
				rows.WriteByte(byte(off >> shift))
			}
			rows.WriteByte(0) // generation
		}
	}

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(rows.Bytes()); err != nil {
		return nil, fmt.Errorf("compress xref stream: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress xref stream: %w", err)
	}

	dict := Dict{
		"Type":   Name("XRef"),
		"W":      Array{Integer(1), Integer(w2), Integer(1)},
		"Index":  index,
		"Filter": Name("FlateDecode"),
	}
	for k, v := range trailer {
		dict[k] = v
	}

	fmt.Fprintf(buf, "%d 0 obj\n", xrefNum)
	buf.Write(Serialize(Stream{Dict: dict, Raw: compressed.Bytes()}))
	buf.WriteString("\nendobj\n")
	fmt.Fprintf(buf, "startxref\n%d\n%%%%EOF\n", xrefStart)
	return buf.Bytes(), nil
}

type subsection struct {
	start, count int
}

// subsections groups sorted object numbers into contiguous runs.
func subsections(nums []int) []subsection {
	sorted := append([]int(nil), nums...)
	sort.Ints(sorted)
	var subs []subsection
	for _, n := range sorted {
		if len(subs) > 0 && subs[len(subs)-1].start+subs[len(subs)-1].count == n {
			subs[len(subs)-1].count++
			continue
		}
		subs = append(subs, subsection{start: n, count: 1})
	}
	return subs
}
