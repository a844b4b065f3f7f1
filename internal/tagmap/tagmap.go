// Package tagmap holds the per-format tag names for the semantic metadata
// fields and maps ID3 frame IDs back to those fields.
package tagmap

import (
	"path/filepath"
	"strings"
)

// Format is a tag container family.
type Format string

const (
	FormatMP3     Format = "mp3"
	FormatOgg     Format = "ogg"
	FormatFLAC    Format = "flac"
	FormatMP4     Format = "mp4"
	FormatASF     Format = "asf"
	FormatWAV     Format = "wav"
	FormatWavPack Format = "wavpack"
)

// Semantic field names.
const (
	FieldTitle       = "title"
	FieldArtist      = "artist"
	FieldAlbum       = "album"
	FieldAlbumArtist = "albumartist"
	FieldDate        = "date"
	FieldYear        = "year"
	FieldGenre       = "genre"
	FieldTrack       = "track"
	FieldDisc        = "disc"
	FieldComposer    = "composer"
)

// Fields lists the semantic fields every format maps.
var Fields = []string{
	FieldTitle, FieldArtist, FieldAlbum, FieldAlbumArtist, FieldDate,
	FieldYear, FieldGenre, FieldTrack, FieldDisc, FieldComposer,
}

var id3 = map[string]string{
	FieldTitle:       "TIT2",
	FieldArtist:      "TPE1",
	FieldAlbum:       "TALB",
	FieldAlbumArtist: "TPE2",
	FieldDate:        "TDRC",
	FieldYear:        "TDRC",
	FieldGenre:       "TCON",
	FieldTrack:       "TRCK",
	FieldDisc:        "TPOS",
	FieldComposer:    "TCOM",
}

var tables = map[Format]map[string]string{
	FormatMP3: id3,
	FormatWAV: id3,
	FormatOgg: {
		FieldTitle:       "TITLE",
		FieldArtist:      "ARTIST",
		FieldAlbum:       "ALBUM",
		FieldAlbumArtist: "ALBUMARTIST",
		FieldDate:        "DATE",
		FieldYear:        "DATE",
		FieldGenre:       "GENRE",
		FieldTrack:       "TRACKNUMBER",
		FieldDisc:        "DISCNUMBER",
		FieldComposer:    "COMPOSER",
	},
	FormatFLAC: {
		FieldTitle:       "title",
		FieldArtist:      "artist",
		FieldAlbum:       "album",
		FieldAlbumArtist: "albumartist",
		FieldDate:        "date",
		FieldYear:        "date",
		FieldGenre:       "genre",
		FieldTrack:       "tracknumber",
		FieldDisc:        "discnumber",
		FieldComposer:    "composer",
	},
	FormatMP4: {
		FieldTitle:       "©nam",
		FieldArtist:      "©ART",
		FieldAlbum:       "©alb",
		FieldAlbumArtist: "aART",
		FieldDate:        "©day",
		FieldYear:        "©day",
		FieldGenre:       "©gen",
		FieldTrack:       "trkn",
		FieldDisc:        "disk",
		FieldComposer:    "©wrt",
	},
	FormatASF: {
		FieldTitle:       "Title",
		FieldArtist:      "Author",
		FieldAlbum:       "WM/AlbumTitle",
		FieldAlbumArtist: "WM/AlbumArtist",
		FieldDate:        "WM/Year",
		FieldYear:        "WM/Year",
		FieldGenre:       "WM/Genre",
		FieldTrack:       "WM/TrackNumber",
		FieldDisc:        "WM/PartOfSet",
		FieldComposer:    "WM/Composer",
	},
	FormatWavPack: {
		FieldTitle:       "Title",
		FieldArtist:      "Artist",
		FieldAlbum:       "Album",
		FieldAlbumArtist: "AlbumArtist",
		FieldDate:        "Date",
		FieldYear:        "Year",
		FieldGenre:       "Genre",
		FieldTrack:       "Track",
		FieldDisc:        "Disc",
		FieldComposer:    "Composer",
	},
}

// frameToField inverts the ID3 table. TDRC is shared by date and year and
// resolves to date.
var frameToField = func() map[string]string {
	m := make(map[string]string, len(id3))
	for _, field := range Fields {
		frame := id3[field]
		if _, taken := m[frame]; !taken {
			m[frame] = field
		}
	}
	return m
}()

var extFormats = map[string]Format{
	".mp3":  FormatMP3,
	".ogg":  FormatOgg,
	".opus": FormatOgg,
	".flac": FormatFLAC,
	".m4a":  FormatMP4,
	".mp4":  FormatMP4,
	".wma":  FormatASF,
	".wav":  FormatWAV,
	".wv":   FormatWavPack,
}

// FormatOf returns the tag format of path by extension.
func FormatOf(path string) (Format, bool) {
	f, ok := extFormats[strings.ToLower(filepath.Ext(path))]
	return f, ok
}

// TagName returns the container-specific name of a semantic field.
func TagName(format Format, field string) (string, bool) {
	table, ok := tables[format]
	if !ok {
		return "", false
	}
	name, ok := table[strings.ToLower(field)]
	return name, ok
}

// UsesFrameIDs reports whether format stores fields under ID3 frame IDs.
func UsesFrameIDs(format Format) bool {
	return format == FormatMP3 || format == FormatWAV
}

// FieldForFrame maps an ID3 frame ID to its semantic field.
func FieldForFrame(frame string) (string, bool) {
	f, ok := frameToField[frame]
	return f, ok
}

// Resolver maps stored field identifiers back to semantic names for files
// whose format uses ID3 frames. Other formats are left alone.
type Resolver struct{}

// ResolveSemanticName implements executor.SemanticNameResolver.
func (Resolver) ResolveSemanticName(target, id string) (string, bool) {
	format, ok := FormatOf(target)
	if !ok || !UsesFrameIDs(format) {
		return "", false
	}
	return FieldForFrame(id)
}
