package media

import "hash/fnv"

// uidMask keeps uids inside the relay's 28-bit non-negative uid space.
const uidMask = 0x0FFFFFFF

// DeriveUID maps a stable participant identity to a relay uid.
//
// The mapping is a deterministic FNV-1a hash masked to 28 bits. There is no
// collision avoidance or registry: two identities hashing to the same value
// would corrupt relay identity. Known limitation, kept for wire compatibility
// with deployed clients.
func DeriveUID(identity string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(identity))
	return h.Sum32() & uidMask
}
