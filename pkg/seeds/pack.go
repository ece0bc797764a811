package seeds

import (
	"github.com/openfroyo/hookguard/pkg/hookerr"
)

// PackedLen returns the number of bytes s occupies in the packed form.
func (s Seed) PackedLen() int {
	switch s.Kind {
	case KindLiteral:
		return 2 + len(s.Bytes)
	case KindInstructionData:
		return 3
	case KindAccountKey:
		return 2
	case KindAccountData:
		return 4
	default:
		return 0
	}
}

// Pack encodes list into the fixed-size seed configuration, zero padded.
func Pack(list []Seed) ([ConfigSize]byte, error) {
	var out [ConfigSize]byte

	total := 0
	for _, s := range list {
		if s.Kind == KindLiteral && len(s.Bytes) > 0xff {
			return out, hookerr.Newf(hookerr.CodeSeedConfigTooLarge, "literal seed of %d bytes", len(s.Bytes))
		}
		n := s.PackedLen()
		if n == 0 {
			return out, hookerr.Newf(hookerr.CodeMalformedDescriptor, "unknown seed kind %d", s.Kind)
		}
		total += n
	}
	if total > ConfigSize {
		return out, hookerr.Newf(hookerr.CodeSeedConfigTooLarge,
			"packed seeds need %d bytes, have %d", total, ConfigSize)
	}

	i := 0
	for _, s := range list {
		out[i] = byte(s.Kind)
		switch s.Kind {
		case KindLiteral:
			out[i+1] = byte(len(s.Bytes))
			copy(out[i+2:], s.Bytes)
		case KindInstructionData:
			out[i+1] = s.Offset
			out[i+2] = s.Length
		case KindAccountKey:
			out[i+1] = s.Index
		case KindAccountData:
			out[i+1] = s.Index
			out[i+2] = s.Offset
			out[i+3] = s.Length
		}
		i += s.PackedLen()
	}

	return out, nil
}

// Unpack decodes a packed seed configuration. Decoding stops at the first
// zero tag, which marks the start of the padding.
func Unpack(config [ConfigSize]byte) ([]Seed, error) {
	var list []Seed

	i := 0
	for i < ConfigSize && config[i] != 0 {
		kind := Kind(config[i])
		var s Seed
		switch kind {
		case KindLiteral:
			if i+2 > ConfigSize {
				return nil, truncated(kind)
			}
			n := int(config[i+1])
			if i+2+n > ConfigSize {
				return nil, truncated(kind)
			}
			s = Literal(config[i+2 : i+2+n])
		case KindInstructionData:
			if i+3 > ConfigSize {
				return nil, truncated(kind)
			}
			s = InstructionData(config[i+1], config[i+2])
		case KindAccountKey:
			if i+2 > ConfigSize {
				return nil, truncated(kind)
			}
			s = AccountKey(config[i+1])
		case KindAccountData:
			if i+4 > ConfigSize {
				return nil, truncated(kind)
			}
			s = AccountData(config[i+1], config[i+2], config[i+3])
		default:
			return nil, hookerr.Newf(hookerr.CodeMalformedDescriptor, "unknown seed tag %d at offset %d", config[i], i)
		}
		list = append(list, s)
		i += s.PackedLen()
	}

	return list, nil
}

func truncated(kind Kind) error {
	return hookerr.Newf(hookerr.CodeMalformedDescriptor, "truncated %s seed", kind)
}
