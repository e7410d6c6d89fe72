package sevenzip

import "fmt"

// mapFiles assigns every entry with a stream its folder, substream index,
// offset within the decoded folder, size and CRC. Entries without a stream
// consume no substream.
func mapFiles(si *StreamsInfo, entries []Entry) error {
	var (
		ss     SubStreamsInfo
		nfold  int
		folder int
		sub    int
		flat   int
		offset uint64
	)
	if si != nil {
		ss = si.SubStreams
		nfold = len(si.Folders)
	}

	for i := range entries {
		e := &entries[i]
		if !e.HasStream {
			e.Folder = -1
			continue
		}
		for folder < nfold && sub >= ss.NumUnpackStreams[folder] {
			folder++
			sub = 0
			offset = 0
		}
		if folder >= nfold {
			return fmt.Errorf("entry %q has no substream left: %w", e.Name, ErrMalformedHeader)
		}

		e.Folder = folder
		e.Substream = sub
		e.Offset = offset
		e.Size = ss.Sizes[flat]
		e.CRC = ss.CRCs[flat]
		e.HasCRC = ss.CRCDefined[flat]

		offset += e.Size
		sub++
		flat++
	}
	return nil
}
