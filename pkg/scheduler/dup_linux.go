package scheduler

import "syscall"

func dupFd(fd int) (int, error) {
	return syscall.Dup(fd)
}

// Linux dropped dup2 from some architectures; dup3 covers them all.
func dupFdTo(oldfd, newfd int) error {
	return syscall.Dup3(oldfd, newfd, 0)
}
