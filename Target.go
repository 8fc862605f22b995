package main

import (
	"encoding/binary"
	"encoding/hex"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// TargetToDifficulty 把矿池的 target 转换为难度。
// 4 字节和 8 字节的 target 为小端序（xmrig 风格），32 字节的 target 为大端序。
func TargetToDifficulty(target string) (uint64, error) {
	bin, err := hex.DecodeString(HexRemovePrefix(target))
	if err != nil {
		return 0, ErrInvalidTarget
	}

	switch len(bin) {
	case 4:
		t := binary.LittleEndian.Uint32(bin)
		if t == 0 {
			return 0, ErrInvalidTarget
		}
		return uint64(math.MaxUint32 / t), nil
	case 8:
		t := binary.LittleEndian.Uint64(bin)
		if t == 0 {
			return 0, ErrInvalidTarget
		}
		return math.MaxUint64 / t, nil
	case 32:
		t := new(uint256.Int).SetBytes(bin)
		if t.IsZero() {
			return 0, ErrInvalidTarget
		}
		diff := new(uint256.Int).Div(new(uint256.Int).SetAllOne(), t)
		if !diff.IsUint64() {
			return math.MaxUint64, nil
		}
		return diff.Uint64(), nil
	}
	return 0, ErrInvalidTarget
}

// DifficultyToTarget256 转换为 0x 开头的 32 字节 target
func DifficultyToTarget256(diff uint64) string {
	target := new(uint256.Int).SetAllOne()
	if diff > 1 {
		target.Div(target, uint256.NewInt(diff))
	}
	return common.Hash(target.Bytes32()).Hex()
}

// Target256 把任意长度的矿池 target 转换为 32 字节形式 (eth)
func Target256(target string) (string, error) {
	if len(HexRemovePrefix(target)) == 64 {
		return common.HexToHash(target).Hex(), nil
	}
	diff, err := TargetToDifficulty(target)
	if err != nil {
		return "", err
	}
	return DifficultyToTarget256(diff), nil
}
