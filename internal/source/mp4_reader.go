package source

import (
	"fmt"
	"io"

	amp4 "github.com/abema/go-mp4"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/av1"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h265"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"
)

type mp4Sample struct {
	duration  uint32
	ptsOffset int32
	sync      bool
	offset    uint64
	size      uint32
}

type mp4SampleTables struct {
	stts         []amp4.SttsEntry
	ctts         *amp4.Ctts
	stss         []uint32
	hasStss      bool
	stsc         []amp4.StscEntry
	sampleSize   uint32
	sampleCount  uint32
	entrySizes   []uint32
	chunkOffsets []uint64
}

type mp4Track struct {
	id         int
	timeScale  uint32
	timeOffset int64
	entryType  string
	codec      mp4.Codec
	codecErr   error
	samples    []*mp4Sample

	elst        []amp4.ElstEntry
	elstVersion uint8
	entry       amp4.IBox
	tables      mp4SampleTables
}

func (t *mp4Track) setCodec(codec mp4.Codec, err error) {
	if t.codec != nil || t.codecErr != nil {
		return
	}
	t.codec = codec
	t.codecErr = err
}

func (t *mp4Track) editTimeOffset(movieTimeScale uint32) {
	for _, e := range t.elst {
		var segmentDuration int64
		var mediaTime int64

		if t.elstVersion == 1 {
			segmentDuration = int64(e.SegmentDurationV1)
			mediaTime = e.MediaTimeV1
		} else {
			segmentDuration = int64(e.SegmentDurationV0)
			mediaTime = int64(e.MediaTimeV0)
		}

		// empty edit
		if mediaTime == -1 {
			if movieTimeScale != 0 {
				t.timeOffset += segmentDuration * int64(t.timeScale) / int64(movieTimeScale)
			}
			continue
		}

		t.timeOffset -= mediaTime
		return
	}
}

func (t *mp4Track) buildSamples() error {
	tb := &t.tables

	count := int(tb.sampleCount)
	if tb.sampleSize == 0 && len(tb.entrySizes) != count {
		return fmt.Errorf("invalid stsz")
	}

	t.samples = make([]*mp4Sample, count)
	for i := range t.samples {
		size := tb.sampleSize
		if size == 0 {
			size = tb.entrySizes[i]
		}
		t.samples[i] = &mp4Sample{
			size: size,
			sync: !tb.hasStss,
		}
	}

	i := 0
	for _, e := range tb.stts {
		for j := uint32(0); j < e.SampleCount; j++ {
			if i >= count {
				return fmt.Errorf("invalid stts")
			}
			t.samples[i].duration = e.SampleDelta
			i++
		}
	}
	if i != count {
		return fmt.Errorf("invalid stts")
	}

	if tb.ctts != nil {
		i = 0
		for _, e := range tb.ctts.Entries {
			offset := int32(e.SampleOffsetV0)
			if tb.ctts.GetVersion() == 1 {
				offset = e.SampleOffsetV1
			}

			for j := uint32(0); j < e.SampleCount; j++ {
				if i >= count {
					return fmt.Errorf("invalid ctts")
				}
				t.samples[i].ptsOffset = offset
				i++
			}
		}
	}

	for _, n := range tb.stss {
		if n == 0 || int(n) > count {
			return fmt.Errorf("invalid stss")
		}
		t.samples[n-1].sync = true
	}

	// each stsc entry applies up to the first chunk of the following one
	i = 0
	for ei, e := range tb.stsc {
		if e.FirstChunk == 0 {
			return fmt.Errorf("invalid stsc")
		}

		lastChunk := uint32(len(tb.chunkOffsets))
		if ei < len(tb.stsc)-1 {
			lastChunk = tb.stsc[ei+1].FirstChunk - 1
		}

		for chunk := e.FirstChunk; chunk <= lastChunk; chunk++ {
			if int(chunk) > len(tb.chunkOffsets) {
				return fmt.Errorf("invalid stsc")
			}

			offset := tb.chunkOffsets[chunk-1]

			for j := uint32(0); j < e.SamplesPerChunk; j++ {
				if i >= count {
					return fmt.Errorf("invalid stsc")
				}
				t.samples[i].offset = offset
				offset += uint64(t.samples[i].size)
				i++
			}
		}
	}
	if i != count {
		return fmt.Errorf("invalid stsc")
	}

	return nil
}

func readPayload[T amp4.IBox](h *amp4.ReadHandle) (T, error) {
	var zero T

	box, _, err := h.ReadPayload()
	if err != nil {
		return zero, err
	}

	v, ok := box.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected payload of box '%s'", h.BoxInfo.Type.String())
	}
	return v, nil
}

func findHvcCNALU(arrays []amp4.HEVCNaluArray, typ h265.NALUType) []byte {
	for _, arr := range arrays {
		if h265.NALUType(arr.NaluType) == typ && len(arr.Nalus) != 0 {
			return arr.Nalus[0].NALUnit
		}
	}
	return nil
}

func codecFromAvcC(avcc *amp4.AVCDecoderConfiguration) (mp4.Codec, error) {
	if len(avcc.SequenceParameterSets) == 0 || len(avcc.PictureParameterSets) == 0 {
		return nil, fmt.Errorf("H264 parameters are missing")
	}

	return &mp4.CodecH264{
		SPS: avcc.SequenceParameterSets[0].NALUnit,
		PPS: avcc.PictureParameterSets[0].NALUnit,
	}, nil
}

func codecFromHvcC(hvcc *amp4.HvcC) (mp4.Codec, error) {
	vps := findHvcCNALU(hvcc.NaluArrays, h265.NALUType_VPS_NUT)
	sps := findHvcCNALU(hvcc.NaluArrays, h265.NALUType_SPS_NUT)
	pps := findHvcCNALU(hvcc.NaluArrays, h265.NALUType_PPS_NUT)
	if vps == nil || sps == nil || pps == nil {
		return nil, fmt.Errorf("H265 parameters are missing")
	}

	return &mp4.CodecH265{
		VPS: vps,
		SPS: sps,
		PPS: pps,
	}, nil
}

func codecFromAv1C(av1c *amp4.Av1C) (mp4.Codec, error) {
	var bs av1.Bitstream
	err := bs.Unmarshal(av1c.ConfigOBUs)
	if err != nil {
		return nil, fmt.Errorf("invalid AV1 configuration: %w", err)
	}

	for _, obu := range bs {
		if len(obu) != 0 && av1.OBUType((obu[0]>>3)&0b1111) == av1.OBUTypeSequenceHeader {
			return &mp4.CodecAV1{SequenceHeader: obu}, nil
		}
	}

	return nil, fmt.Errorf("AV1 sequence header is missing")
}

func codecFromVpcC(entry amp4.IBox, vpcc *amp4.VpcC) (mp4.Codec, error) {
	vse, ok := entry.(*amp4.VisualSampleEntry)
	if !ok {
		return nil, fmt.Errorf("invalid VP9 sample entry")
	}

	return &mp4.CodecVP9{
		Width:             int(vse.Width),
		Height:            int(vse.Height),
		Profile:           vpcc.Profile,
		BitDepth:          vpcc.BitDepth,
		ChromaSubsampling: vpcc.ChromaSubsampling,
		ColorRange:        vpcc.VideoFullRangeFlag != 0,
	}, nil
}

func codecFromEsds(esds *amp4.Esds) (mp4.Codec, error) {
	for _, desc := range esds.Descriptors {
		if desc.Tag == amp4.DecSpecificInfoTag {
			var conf mpeg4audio.AudioSpecificConfig
			err := conf.Unmarshal(desc.Data)
			if err != nil {
				return nil, fmt.Errorf("invalid MPEG-4 audio configuration: %w", err)
			}

			return &mp4.CodecMPEG4Audio{Config: conf}, nil
		}
	}

	return nil, fmt.Errorf("MPEG-4 audio configuration is missing")
}

func codecFromPcmC(entry amp4.IBox, pcmc *amp4.PcmC) (mp4.Codec, error) {
	ase, ok := entry.(*amp4.AudioSampleEntry)
	if !ok {
		return nil, fmt.Errorf("invalid LPCM sample entry")
	}

	return &mp4.CodecLPCM{
		LittleEndian: (pcmc.FormatFlags & 0x01) != 0,
		BitDepth:     int(pcmc.PCMSampleSize),
		SampleRate:   int(ase.SampleRate / 65536),
		ChannelCount: int(ase.ChannelCount),
	}, nil
}

// readMP4Tracks reads the tracks of a progressive MP4 file
// and computes position, size and timing of every sample.
func readMP4Tracks(r io.ReadSeeker) ([]*mp4Track, error) {
	var movieTimeScale uint32
	var tracks []*mp4Track
	var cur *mp4Track
	moovFound := false

	_, err := amp4.ReadBoxStructure(r, func(h *amp4.ReadHandle) (interface{}, error) {
		typ := h.BoxInfo.Type.String()

		switch typ {
		case "moov":
			moovFound = true
			return h.Expand()

		case "mvhd":
			mvhd, err := readPayload[*amp4.Mvhd](h)
			if err != nil {
				return nil, err
			}
			movieTimeScale = mvhd.Timescale
			return nil, nil

		case "trak":
			cur = &mp4Track{}
			tracks = append(tracks, cur)
			return h.Expand()
		}

		if cur == nil {
			return nil, nil
		}

		switch typ {
		case "edts", "mdia", "minf", "stbl", "stsd":
			return h.Expand()

		case "tkhd":
			tkhd, err := readPayload[*amp4.Tkhd](h)
			if err != nil {
				return nil, err
			}
			cur.id = int(tkhd.TrackID)

		case "elst":
			elst, err := readPayload[*amp4.Elst](h)
			if err != nil {
				return nil, err
			}
			cur.elst = elst.Entries
			cur.elstVersion = elst.GetVersion()

		case "mdhd":
			mdhd, err := readPayload[*amp4.Mdhd](h)
			if err != nil {
				return nil, err
			}
			cur.timeScale = mdhd.Timescale

		case "avc1", "avc3", "hev1", "hvc1", "av01", "vp09", "mp4a", "Opus", "ipcm":
			// only the first sample description is used
			if cur.entryType != "" {
				return nil, nil
			}
			cur.entryType = typ

			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			cur.entry = box

			return h.Expand()

		case "avcC":
			avcc, err := readPayload[*amp4.AVCDecoderConfiguration](h)
			if err != nil {
				return nil, err
			}
			cur.setCodec(codecFromAvcC(avcc))

		case "hvcC":
			hvcc, err := readPayload[*amp4.HvcC](h)
			if err != nil {
				return nil, err
			}
			cur.setCodec(codecFromHvcC(hvcc))

		case "av1C":
			av1c, err := readPayload[*amp4.Av1C](h)
			if err != nil {
				return nil, err
			}
			cur.setCodec(codecFromAv1C(av1c))

		case "vpcC":
			vpcc, err := readPayload[*amp4.VpcC](h)
			if err != nil {
				return nil, err
			}
			cur.setCodec(codecFromVpcC(cur.entry, vpcc))

		case "esds":
			esds, err := readPayload[*amp4.Esds](h)
			if err != nil {
				return nil, err
			}
			cur.setCodec(codecFromEsds(esds))

		case "dOps":
			dops, err := readPayload[*amp4.DOps](h)
			if err != nil {
				return nil, err
			}
			cur.setCodec(&mp4.CodecOpus{ChannelCount: int(dops.OutputChannelCount)}, nil)

		case "pcmC":
			pcmc, err := readPayload[*amp4.PcmC](h)
			if err != nil {
				return nil, err
			}
			cur.setCodec(codecFromPcmC(cur.entry, pcmc))

		case "stts":
			stts, err := readPayload[*amp4.Stts](h)
			if err != nil {
				return nil, err
			}
			cur.tables.stts = stts.Entries

		case "ctts":
			ctts, err := readPayload[*amp4.Ctts](h)
			if err != nil {
				return nil, err
			}
			cur.tables.ctts = ctts

		case "stss":
			stss, err := readPayload[*amp4.Stss](h)
			if err != nil {
				return nil, err
			}
			cur.tables.stss = stss.SampleNumber
			cur.tables.hasStss = true

		case "stsc":
			stsc, err := readPayload[*amp4.Stsc](h)
			if err != nil {
				return nil, err
			}
			cur.tables.stsc = stsc.Entries

		case "stsz":
			stsz, err := readPayload[*amp4.Stsz](h)
			if err != nil {
				return nil, err
			}
			cur.tables.sampleSize = stsz.SampleSize
			cur.tables.sampleCount = stsz.SampleCount
			cur.tables.entrySizes = stsz.EntrySize

		case "stco":
			stco, err := readPayload[*amp4.Stco](h)
			if err != nil {
				return nil, err
			}
			cur.tables.chunkOffsets = make([]uint64, len(stco.ChunkOffset))
			for i, v := range stco.ChunkOffset {
				cur.tables.chunkOffsets[i] = uint64(v)
			}

		case "co64":
			co64, err := readPayload[*amp4.Co64](h)
			if err != nil {
				return nil, err
			}
			cur.tables.chunkOffsets = co64.ChunkOffset
		}

		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	if !moovFound {
		return nil, fmt.Errorf("moov box not found")
	}

	for _, t := range tracks {
		if t.timeScale == 0 {
			return nil, fmt.Errorf("track %d has no time scale", t.id)
		}

		t.editTimeOffset(movieTimeScale)

		err = t.buildSamples()
		if err != nil {
			return nil, fmt.Errorf("track %d: %w", t.id, err)
		}

		if t.codec == nil && t.codecErr == nil {
			if t.entryType == "" {
				t.codecErr = fmt.Errorf("unsupported codec")
			} else {
				t.codecErr = fmt.Errorf("codec configuration of '%s' is missing", t.entryType)
			}
		}

		t.tables = mp4SampleTables{}
		t.entry = nil
		t.elst = nil
	}

	return tracks, nil
}
