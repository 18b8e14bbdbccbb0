package platform

import (
	"math"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/stealthrocket/wasivfs/pkg/vfs/fserr"
	"github.com/stealthrocket/wasivfs/pkg/vfs/op"
)

// FileID identifies a file independently of the handles open on it. Hosts
// which do not expose inode numbers identify files by their path.
type FileID struct {
	Dev  uint64
	Ino  uint64
	Path string
}

// LockRange computes the absolute byte range [start, end) covered by lock,
// given the current offset of the handle and the size of the file. An end of
// math.MaxInt64 means the region extends past the end of the file.
func LockRange(lock op.AdvisoryLock, offset, size int64) (start, end int64, err error) {
	switch lock.Whence {
	case op.SeekStart:
		start = lock.Start
	case op.SeekCurrent:
		start = offset + lock.Start
	case op.SeekEnd:
		start = size + lock.Start
	default:
		return 0, 0, fserr.InvalidArgument
	}
	switch {
	case lock.Length == 0:
		end = math.MaxInt64
	case lock.Length > 0:
		if start > math.MaxInt64-lock.Length {
			return 0, 0, fserr.Overflow
		}
		end = start + lock.Length
	default:
		start, end = start+lock.Length, start
	}
	if start < 0 {
		return 0, 0, fserr.InvalidArgument
	}
	return start, end, nil
}

type lockRecord struct {
	owner  any
	shared bool
	start  int64
	end    int64
}

func (r *lockRecord) overlaps(start, end int64) bool {
	return r.start < end && start < r.end
}

// LockManager implements fcntl(2) record locks within the process, for
// adapters that have no native equivalent.
//
// Locks held by the same owner never conflict; acquiring a lock over a region
// that the owner already holds replaces the lock type on the overlap, and
// unlocking a sub-region splits the records around it.
type LockManager struct {
	mutex sync.Mutex
	files map[FileID][]lockRecord
}

// Lock acquires or releases a lock on the range [start, end) of the file id
// on behalf of owner. The call fails with Again if another owner holds a
// conflicting lock.
func (m *LockManager) Lock(id FileID, owner any, typ op.LockType, start, end int64) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	records := m.files[id]
	switch typ {
	case op.Unlock:
	case op.SharedLock, op.ExclusiveLock:
		for i := range records {
			r := &records[i]
			if r.owner == owner || !r.overlaps(start, end) {
				continue
			}
			if !r.shared || typ == op.ExclusiveLock {
				return fserr.Again
			}
		}
	default:
		return fserr.InvalidArgument
	}

	records = removeRange(records, owner, start, end)
	if typ != op.Unlock {
		records = append(records, lockRecord{
			owner:  owner,
			shared: typ == op.SharedLock,
			start:  start,
			end:    end,
		})
		records = mergeRecords(records)
	}

	if m.files == nil {
		m.files = make(map[FileID][]lockRecord)
	}
	if len(records) == 0 {
		delete(m.files, id)
	} else {
		m.files[id] = records
	}
	return nil
}

// UnlockAll releases every lock held by owner on the file, which is what
// happens when a descriptor is closed.
func (m *LockManager) UnlockAll(id FileID, owner any) {
	_ = m.Lock(id, owner, op.Unlock, 0, math.MaxInt64)
}

// Held returns the number of lock records currently held on the file.
func (m *LockManager) Held(id FileID) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.files[id])
}

func removeRange(records []lockRecord, owner any, start, end int64) []lockRecord {
	result := records[:0:0]
	for _, r := range records {
		if r.owner != owner || !r.overlaps(start, end) {
			result = append(result, r)
			continue
		}
		if r.start < start {
			head := r
			head.end = start
			result = append(result, head)
		}
		if r.end > end {
			tail := r
			tail.start = end
			result = append(result, tail)
		}
	}
	return result
}

func mergeRecords(records []lockRecord) []lockRecord {
	slices.SortFunc(records, func(a, b lockRecord) bool {
		return a.start < b.start
	})
	merged := records[:0]
	for _, r := range records {
		if n := len(merged); n > 0 {
			last := &merged[n-1]
			if last.owner == r.owner && last.shared == r.shared && r.start <= last.end {
				if r.end > last.end {
					last.end = r.end
				}
				continue
			}
		}
		merged = append(merged, r)
	}
	return merged
}
