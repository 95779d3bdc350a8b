package framework

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	amp4 "github.com/abema/go-mp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"

	"github.com/bluenviron/mediamux/internal/muxer"
)

// seconds between 1904-01-01 and 1970-01-01
const mp4EpochOffset = 2082844800

// language code used by ©xyz boxes
const xyzLanguage = 0x15c7

func boxTypeMmde() amp4.BoxType { return amp4.StrToBoxType("mmde") }

func boxTypeXyz() amp4.BoxType { return amp4.BoxType{0xa9, 'x', 'y', 'z'} }

func init() { //nolint:gochecknoinits
	amp4.AddBoxDef(&Mmde{}, 0)
	amp4.AddBoxDef(&Xyz{})
}

// Mmde is a metadata entry.
type Mmde struct {
	amp4.FullBox `mp4:"0,extend"`
	Key          string `mp4:"1,string"`
	Value        string `mp4:"2,string"`
}

// GetType implements amp4.IBox.
func (*Mmde) GetType() amp4.BoxType {
	return boxTypeMmde()
}

// Xyz is a geographic location in ISO 6709 notation.
type Xyz struct {
	amp4.Box
	DataSize uint16 `mp4:"0,size=16"`
	Language uint16 `mp4:"1,size=16"`
	Location []byte `mp4:"2,size=8"`
}

// GetType implements amp4.IBox.
func (*Xyz) GetType() amp4.BoxType {
	return boxTypeXyz()
}

func writeUdta(mw *mp4Writer, location *muxer.Location, entries []muxer.MetadataEntry) error {
	/*
		|udta|
		|    |©xyz|
		|    |mmde|
		|    |mmde|
		|    |....|
	*/

	_, err := mw.writeBoxStart(&amp4.Udta{}) // <udta>
	if err != nil {
		return err
	}

	if location != nil {
		v := location.Value()
		_, err = mw.writeBox(&Xyz{ // <©xyz/>
			DataSize: uint16(len(v)),
			Language: xyzLanguage,
			Location: []byte(v),
		})
		if err != nil {
			return err
		}
	}

	for _, entry := range entries {
		_, err = mw.writeBox(&Mmde{ // <mmde/>
			Key:   entry.Key(),
			Value: entry.Value(),
		})
		if err != nil {
			return err
		}
	}

	return mw.writeBoxEnd() // </udta>
}

// writeMetadataBox writes a top-level udta box that contains a mmde box for each entry.
func writeMetadataBox(w io.Writer, entries []muxer.MetadataEntry) error {
	if len(entries) == 0 {
		return nil
	}

	var buf seekablebuffer.Buffer

	err := writeUdta(newMP4Writer(&buf), nil, entries)
	if err != nil {
		return err
	}

	_, err = w.Write(buf.Bytes())
	return err
}

// mp4HeaderMetadata is the metadata stored into the moov box.
type mp4HeaderMetadata struct {
	creationTime   time.Time
	location       *muxer.Location
	rotation       int
	rotatedTracks  map[uint32]struct{}
	entries        []muxer.MetadataEntry
	chunkOffsetAdd int64
}

func newMP4HeaderMetadata(m *fileMuxer, entries []muxer.MetadataEntry) *mp4HeaderMetadata {
	h := &mp4HeaderMetadata{
		entries:       entries,
		rotatedTracks: make(map[uint32]struct{}),
	}

	for _, e := range entries {
		switch e := e.(type) {
		case muxer.CreationTime:
			h.creationTime = e.Time

		case muxer.Location:
			h.location = &e

		case muxer.Orientation:
			h.rotation = e.Degrees
		}
	}

	if h.rotation != 0 {
		for _, t := range m.tracks {
			if t.isVideo {
				h.rotatedTracks[uint32(t.id)] = struct{}{}
			}
		}
	}

	return h
}

// clockwise rotation in the transformation matrix of tkhd
func rotationMatrix(degrees int) [9]int32 {
	switch degrees {
	case 90:
		return [9]int32{0, 0x10000, 0, -0x10000, 0, 0, 0, 0, 0x40000000}

	case 180:
		return [9]int32{-0x10000, 0, 0, 0, -0x10000, 0, 0, 0, 0x40000000}

	case 270:
		return [9]int32{0, -0x10000, 0, 0x10000, 0, 0, 0, 0, 0x40000000}
	}

	return [9]int32{0x10000, 0, 0, 0, 0x10000, 0, 0, 0, 0x40000000}
}

func rewriteBox(w *amp4.Writer, h *amp4.ReadHandle, box amp4.IBox) error {
	_, err := w.StartBox(&amp4.BoxInfo{Type: h.BoxInfo.Type})
	if err != nil {
		return err
	}

	_, err = amp4.Marshal(w, box, h.BoxInfo.Context)
	if err != nil {
		return err
	}

	_, err = w.EndBox()
	return err
}

func (h *mp4HeaderMetadata) rewriteOnce(header []byte) ([]byte, error) {
	var buf seekablebuffer.Buffer
	w := amp4.NewWriter(&buf)
	r := bytes.NewReader(header)

	_, err := amp4.ReadBoxStructure(r, func(rh *amp4.ReadHandle) (interface{}, error) {
		switch rh.BoxInfo.Type.String() {
		case "moov", "trak", "mdia", "minf", "stbl":
			_, err := w.StartBox(&amp4.BoxInfo{Type: rh.BoxInfo.Type})
			if err != nil {
				return nil, err
			}

			_, err = rh.Expand()
			if err != nil {
				return nil, err
			}

			if rh.BoxInfo.Type == amp4.BoxTypeMoov() &&
				(h.location != nil || len(h.entries) != 0) {
				err = writeUdta(&mp4Writer{w: w}, h.location, h.entries)
				if err != nil {
					return nil, err
				}
			}

			_, err = w.EndBox()
			return nil, err

		case "mvhd":
			box, _, err := rh.ReadPayload()
			if err != nil {
				return nil, err
			}
			mvhd := box.(*amp4.Mvhd)

			if !h.creationTime.IsZero() {
				v := uint64(h.creationTime.Unix() + mp4EpochOffset)
				if mvhd.GetVersion() == 0 {
					mvhd.CreationTimeV0 = uint32(v)
					mvhd.ModificationTimeV0 = uint32(v)
				} else {
					mvhd.CreationTimeV1 = v
					mvhd.ModificationTimeV1 = v
				}
			}

			return nil, rewriteBox(w, rh, mvhd)

		case "tkhd":
			box, _, err := rh.ReadPayload()
			if err != nil {
				return nil, err
			}
			tkhd := box.(*amp4.Tkhd)

			if _, ok := h.rotatedTracks[tkhd.TrackID]; ok {
				tkhd.Matrix = rotationMatrix(h.rotation)
			}

			return nil, rewriteBox(w, rh, tkhd)

		case "stco":
			box, _, err := rh.ReadPayload()
			if err != nil {
				return nil, err
			}
			stco := box.(*amp4.Stco)

			for i, v := range stco.ChunkOffset {
				nv := int64(v) + h.chunkOffsetAdd
				if nv < 0 || nv > 0xFFFFFFFF {
					return nil, fmt.Errorf("chunk offset out of range")
				}
				stco.ChunkOffset[i] = uint32(nv)
			}

			return nil, rewriteBox(w, rh, stco)
		}

		return nil, w.CopyBox(r, &rh.BoxInfo)
	})
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// rewrite stores the metadata into a header made of ftyp and moov.
// Since the moov box grows, chunk offsets are shifted by the same amount.
func (h *mp4HeaderMetadata) rewrite(header []byte) ([]byte, error) {
	h.chunkOffsetAdd = 0

	out, err := h.rewriteOnce(header)
	if err != nil {
		return nil, err
	}

	shift := int64(len(out)) - int64(len(header))
	if shift == 0 {
		return out, nil
	}

	h.chunkOffsetAdd = shift
	return h.rewriteOnce(header)
}

// mp4HeaderSize returns the size of the boxes that precede
// the first mdat box, or false if moov is not complete yet.
func mp4HeaderSize(buf []byte) (int, bool) {
	pos := uint64(0)

	for {
		if uint64(len(buf)) < pos+8 {
			return 0, false
		}

		size := uint64(binary.BigEndian.Uint32(buf[pos:]))
		typ := string(buf[pos+4 : pos+8])

		if size == 1 {
			if uint64(len(buf)) < pos+16 {
				return 0, false
			}
			size = binary.BigEndian.Uint64(buf[pos+8:])
		}

		if typ == "mdat" || size < 8 {
			return int(pos), true
		}

		if typ == "moov" {
			if uint64(len(buf)) < pos+size {
				return 0, false
			}
			return int(pos + size), true
		}

		pos += size
	}
}

// mp4HeaderWriter buffers the boxes that precede mdat, rewrites them
// and then passes through the rest of the stream.
type mp4HeaderWriter struct {
	w       io.Writer
	rewrite func([]byte) ([]byte, error)

	buf  []byte
	done bool
}

func (w *mp4HeaderWriter) Write(p []byte) (int, error) {
	if w.done {
		return w.w.Write(p)
	}

	w.buf = append(w.buf, p...)

	n, ok := mp4HeaderSize(w.buf)
	if !ok {
		return len(p), nil
	}

	header, err := w.rewrite(w.buf[:n])
	if err != nil {
		return 0, err
	}

	_, err = w.w.Write(header)
	if err != nil {
		return 0, err
	}

	_, err = w.w.Write(w.buf[n:])
	if err != nil {
		return 0, err
	}

	w.buf = nil
	w.done = true

	return len(p), nil
}
