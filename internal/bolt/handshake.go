package bolt

import (
	"encoding/binary"

	"github.com/graphwire/bolt-go-driver/dberr"
)

// Magic is the four-byte preamble sent before the version proposals.
const Magic uint32 = 0x6060B017

// httpMagic is what an HTTP server's status line begins with when a client
// mistakenly points the native protocol at an HTTP port; seeing it back
// instead of a negotiated version means "wrong endpoint", not "bad version".
const httpMagic uint32 = 0x48545450

// Version is a negotiated protocol version. Major/Minor follow the wire's
// own encoding quirk: protocol <=3.x carries major in the low byte only;
// 4.x and above carries minor in the third byte, major in the fourth.
type Version struct {
	Major byte
	Minor byte
}

func (v Version) AtLeast(major, minor byte) bool {
	if v.Major != major {
		return v.Major > major
	}
	return v.Minor >= minor
}

// DefaultProposals is the set of protocol versions this driver offers,
// highest first, as required by the handshake.
var DefaultProposals = []Version{
	{Major: 4, Minor: 3},
	{Major: 4, Minor: 1},
	{Major: 4, Minor: 0},
	{Major: 3, Minor: 0},
}

// EncodeHandshake builds the 20-byte handshake message: magic followed by
// up to four 4-byte big-endian version proposals, high to low. Fewer than
// four proposals are padded with zero (meaning "no offer").
func EncodeHandshake(proposals []Version) []byte {
	out := make([]byte, 4+16)
	binary.BigEndian.PutUint32(out[0:4], Magic)
	for i := 0; i < 4; i++ {
		off := 4 + i*4
		if i >= len(proposals) {
			continue
		}
		v := proposals[i]
		if v.Major >= 4 {
			out[off+2] = v.Minor
			out[off+3] = v.Major
		} else {
			out[off+3] = v.Major
		}
	}
	return out
}

// DecodeNegotiatedVersion parses the server's 4-byte reply. A reply equal
// to the HTTP status-line magic is a protocol error with actionable
// guidance; an all-zero reply means no proposal was acceptable.
func DecodeNegotiatedVersion(reply []byte) (Version, error) {
	if len(reply) != 4 {
		return Version{}, &dberr.ProtocolError{Message: "handshake reply must be 4 bytes"}
	}
	word := binary.BigEndian.Uint32(reply)
	if word == httpMagic {
		return Version{}, &dberr.ProtocolError{
			Message: "server responded HTTP. HTTP defaults to port 7474 whereas the native protocol defaults to port 7687",
		}
	}
	if word == 0 {
		return Version{}, &dberr.ProtocolError{Message: "server rejected all proposed protocol versions"}
	}
	if reply[0] != 0 || reply[1] != 0 {
		return Version{}, &dberr.ProtocolError{Message: "unsupported handshake reply format"}
	}
	if reply[2] == 0 {
		return Version{Major: reply[3]}, nil
	}
	return Version{Major: reply[3], Minor: reply[2]}, nil
}
