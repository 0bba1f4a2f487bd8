package ergo

import (
	"bytes"
	"encoding/hex"
)

const minerFeeTreeHex = "1005040004000e36100204a00b08cd0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798ea02d192a39a8cc7a701730073011001020402d19683030193a38cc7b2a57300000193c2b2a57301007473027303830108cdeeac93b1a57304"

// MinerFeeTree is the standard fee proposition with a 720 block delay.
//
//nolint:gochecknoglobals // decoded constant
var MinerFeeTree = mustHex(minerFeeTreeHex)

// IsMinerFeeTree reports whether tree is the standard fee proposition.
func IsMinerFeeTree(tree []byte) bool {
	return bytes.Equal(tree, MinerFeeTree)
}

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}
