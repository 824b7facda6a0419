// Copyright (c) 2021 Canonical Ltd
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License version 3 as
// published by the Free Software Foundation.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package testutil

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/pkg/term/termios"
	"golang.org/x/sys/unix"
)

// OpenPty allocates a pty pair for tests that need a real terminal device to
// exercise terminal package functions against, without the complexity of
// making it this process's controlling terminal (which would require a
// Setsid call affecting the whole test binary).
func OpenPty() (ptx, pty *os.File, err error) {
	ptx, err = os.OpenFile("/dev/ptmx", os.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("open /dev/ptmx: %w", err)
	}
	revert := true
	defer func() {
		if revert {
			ptx.Close()
		}
	}()

	unlock := 0
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, ptx.Fd(), unix.TIOCSPTLCK, uintptr(unsafe.Pointer(&unlock))); errno != 0 {
		return nil, nil, fmt.Errorf("unlock pty: %w", errno)
	}

	id := 0
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, ptx.Fd(), unix.TIOCGPTN, uintptr(unsafe.Pointer(&id))); errno != 0 {
		return nil, nil, fmt.Errorf("get pty number: %w", errno)
	}

	pty, err = os.OpenFile(fmt.Sprintf("/dev/pts/%d", id), os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("open pty slave: %w", err)
	}

	revert = false
	return ptx, pty, nil
}

// MakeRaw puts fd into raw mode, returning the termios attributes it had
// before.
func MakeRaw(fd int) (*unix.Termios, error) {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, err
	}
	saved := *t
	raw := saved
	termios.Cfmakeraw(&raw)
	if err := termios.Tcsetattr(uintptr(fd), termios.TCSANOW, &raw); err != nil {
		return nil, err
	}
	return &saved, nil
}
