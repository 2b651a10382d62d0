package ffmpeg

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
)

// VerifyElementaryStream checks that path holds a decodable Annex-B H.264
// elementary stream: both parameter sets present and at least one IDR frame.
// SPS geometry is logged when it parses, since the encapsulated object
// carries no geometry attributes of its own.
func VerifyElementaryStream(path string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading elementary stream: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("elementary stream is empty")
	}

	var au h264.AnnexB
	if err := au.Unmarshal(data); err != nil {
		return fmt.Errorf("not an Annex-B stream: %w", err)
	}

	var spsNALU []byte
	var haveSPS, havePPS, haveIDR bool
	for _, nalu := range au {
		if len(nalu) == 0 {
			continue
		}
		switch h264.NALUType(nalu[0] & 0x1F) {
		case h264.NALUTypeSPS:
			haveSPS = true
			if spsNALU == nil {
				spsNALU = nalu
			}
		case h264.NALUTypePPS:
			havePPS = true
		case h264.NALUTypeIDR:
			haveIDR = true
		}
	}

	if !haveSPS || !havePPS {
		return fmt.Errorf("stream is missing parameter sets (sps=%t pps=%t)", haveSPS, havePPS)
	}
	if !haveIDR {
		return fmt.Errorf("stream has no IDR frame")
	}

	var sps h264.SPS
	if err := sps.Unmarshal(spsNALU); err == nil {
		logger.Debug("elementary stream verified",
			slog.Int("width", sps.Width()),
			slog.Int("height", sps.Height()),
			slog.Int("level_idc", int(sps.LevelIdc)),
			slog.Int("nal_units", len(au)))
	}

	return nil
}
