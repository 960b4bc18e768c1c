package server

import (
	"bufio"
	"bytes"
)

type protocolType int

const (
	protocolTCP protocolType = iota
	protocolHTTP
)

func (p protocolType) String() string {
	if p == protocolHTTP {
		return "http"
	}
	return "tcp"
}

// httpPrefixes are the first four bytes of every HTTP/1.x request method.
// Raw frames start with the 0xCAFEBABE magic and never match.
var httpPrefixes = [][]byte{
	[]byte("GET "),
	[]byte("POST"),
	[]byte("PUT "),
	[]byte("HEAD"),
	[]byte("OPTI"),
	[]byte("PATC"),
	[]byte("DELE"),
	[]byte("CONN"),
	[]byte("TRAC"),
}

// detectProtocol peeks at the first bytes to determine protocol type.
// Peeked bytes stay in reader.
func detectProtocol(reader *bufio.Reader) (protocolType, error) {
	peek, err := reader.Peek(4)
	if err != nil {
		return protocolTCP, err
	}
	for _, p := range httpPrefixes {
		if bytes.Equal(peek, p) {
			return protocolHTTP, nil
		}
	}
	return protocolTCP, nil
}
