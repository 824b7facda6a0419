// Package siggate implements the shell's signal gate: counted block/unblock
// of SIGCHLD and SIGTTOU around critical sections, so that nested block
// calls (REPL bracket around a builtin that itself blocks again) leave the
// pending-signal mask exactly where they found it.
package siggate

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Gate blocks and unblocks signals via a counted shadow mask. Each Block
// call for a given signal must be matched by exactly one Unblock call; the
// Nth nested Block is a no-op at the OS level, and only the call that drops
// the count back to zero actually unblocks the signal.
type Gate struct {
	mu     sync.Mutex
	counts map[unix.Signal]int
}

// New returns a ready-to-use Gate.
func New() *Gate {
	return &Gate{counts: make(map[unix.Signal]int)}
}

// Block blocks sig from delivery to this process, unless it is already
// blocked by an outer Block call, in which case it only bumps the count.
func (g *Gate) Block(sig unix.Signal) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.counts[sig]++
	if g.counts[sig] != 1 {
		return nil
	}
	set := sigset(sig)
	if err := unix.PthreadSigmask(unix.SIG_BLOCK, &set, nil); err != nil {
		g.counts[sig]--
		return fmt.Errorf("block %v: %w", sig, err)
	}
	return nil
}

// Unblock reverses one Block call. Once the count for sig reaches zero, the
// signal is actually unblocked at the OS level.
func (g *Gate) Unblock(sig unix.Signal) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.counts[sig] == 0 {
		return nil
	}
	g.counts[sig]--
	if g.counts[sig] != 0 {
		return nil
	}
	set := sigset(sig)
	if err := unix.PthreadSigmask(unix.SIG_UNBLOCK, &set, nil); err != nil {
		g.counts[sig]++
		return fmt.Errorf("unblock %v: %w", sig, err)
	}
	return nil
}

// sigset builds a Sigset_t containing exactly sig.
func sigset(sig unix.Signal) unix.Sigset_t {
	var set unix.Sigset_t
	bit := uint(sig) - 1
	set.Val[bit/64] |= 1 << (bit % 64)
	return set
}
