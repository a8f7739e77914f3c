package service

import (
	"fmt"
	"sync"
)

// keyedMutex 按 (student, lesson) 粒度串行化 submission_data / 完成状态的整体读改写。
// MySQL 事务里另有行锁兜底；本进程内的锁保证在不支持 FOR UPDATE 的方言上同样成立。
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) Lock(studentID, lessonID uint) func() {
	key := fmt.Sprintf("%d:%d", studentID, lessonID)

	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
