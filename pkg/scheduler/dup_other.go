//go:build unix && !linux

package scheduler

import "syscall"

func dupFd(fd int) (int, error) {
	return syscall.Dup(fd)
}

func dupFdTo(oldfd, newfd int) error {
	return syscall.Dup2(oldfd, newfd)
}
