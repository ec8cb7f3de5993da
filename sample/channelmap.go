package sample

import (
	"strconv"
	"strings"
)

// A Position names the speaker a channel is meant for.
type Position int

// Channel positions.
const (
	PositionMono Position = iota
	PositionFrontLeft
	PositionFrontRight
	PositionFrontCenter
	PositionRearCenter
	PositionRearLeft
	PositionRearRight
	PositionLFE
	PositionSideLeft
	PositionSideRight
	PositionAux0
)

var positionNames = map[Position]string{
	PositionMono:        "mono",
	PositionFrontLeft:   "front-left",
	PositionFrontRight:  "front-right",
	PositionFrontCenter: "front-center",
	PositionRearCenter:  "rear-center",
	PositionRearLeft:    "rear-left",
	PositionRearRight:   "rear-right",
	PositionLFE:         "lfe",
	PositionSideLeft:    "side-left",
	PositionSideRight:   "side-right",
}

func (p Position) String() string {
	if name, ok := positionNames[p]; ok {
		return name
	}
	if p >= PositionAux0 {
		return "aux" + strconv.Itoa(int(p-PositionAux0))
	}
	return "invalid"
}

// A ChannelMap assigns a position to every channel of a stream.
type ChannelMap []Position

// DefaultChannelMap returns the conventional layout for n channels.
func DefaultChannelMap(n int) ChannelMap {
	switch n {
	case 1:
		return ChannelMap{PositionMono}
	case 2:
		return ChannelMap{PositionFrontLeft, PositionFrontRight}
	case 4:
		return ChannelMap{PositionFrontLeft, PositionFrontRight, PositionRearLeft, PositionRearRight}
	case 6:
		return ChannelMap{
			PositionFrontLeft, PositionFrontRight, PositionFrontCenter,
			PositionLFE, PositionRearLeft, PositionRearRight,
		}
	case 8:
		return ChannelMap{
			PositionFrontLeft, PositionFrontRight, PositionFrontCenter, PositionLFE,
			PositionRearLeft, PositionRearRight, PositionSideLeft, PositionSideRight,
		}
	}
	m := make(ChannelMap, n)
	for i := range m {
		m[i] = PositionAux0 + Position(i)
	}
	return m
}

// Equal reports whether both maps describe the same layout.
func (m ChannelMap) Equal(other ChannelMap) bool {
	if len(m) != len(other) {
		return false
	}
	for i := range m {
		if m[i] != other[i] {
			return false
		}
	}
	return true
}

// Index returns the first channel carrying p, or -1.
func (m ChannelMap) Index(p Position) int {
	for i, pos := range m {
		if pos == p {
			return i
		}
	}
	return -1
}

func (m ChannelMap) String() string {
	names := make([]string, len(m))
	for i, p := range m {
		names[i] = p.String()
	}
	return strings.Join(names, ",")
}
