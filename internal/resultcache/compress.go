package resultcache

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// zstdMagic 는 zstd 프레임 시작 바이트다. 압축 여부를 값만 보고 판별한다.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// minCompressSize 미만의 값은 압축 이득이 없어 원본 그대로 저장한다.
const minCompressSize = 256

// 싱글톤 encoder/decoder - goroutine-safe 재사용
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	initOnce    sync.Once
	errInit     error
)

func initZstd() error {
	initOnce.Do(func() {
		var err error
		zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			errInit = fmt.Errorf("create zstd encoder: %w", err)
			return
		}
		zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
		if err != nil {
			errInit = fmt.Errorf("create zstd decoder: %w", err)
		}
	})
	return errInit
}

// encodeValue: 충분히 큰 값만 zstd 로 압축합니다.
func encodeValue(src []byte, compress bool) ([]byte, error) {
	if !compress || len(src) < minCompressSize {
		return src, nil
	}
	if err := initZstd(); err != nil {
		return nil, err
	}
	return zstdEncoder.EncodeAll(src, make([]byte, 0, len(src)/2)), nil
}

// decodeValue: zstd 프레임이면 해제하고 아니면 그대로 반환합니다.
// 압축 설정을 바꿔도 기존 항목을 읽을 수 있습니다.
func decodeValue(src []byte) ([]byte, error) {
	if !bytes.HasPrefix(src, zstdMagic) {
		return src, nil
	}
	if err := initZstd(); err != nil {
		return nil, err
	}
	decoded, err := zstdDecoder.DecodeAll(src, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return decoded, nil
}
