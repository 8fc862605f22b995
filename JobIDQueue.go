package main

// JobIDPair grin 矿机使用的数字任务 id 与矿池任务 id 的对应关系
type JobIDPair struct {
	JobID     uint64
	PoolJobID string
}

// JobIDQueue 固定大小的环形队列，旧的映射会被覆盖
type JobIDQueue struct {
	Queue  []JobIDPair
	Size   int
	Pos    int
	nextID uint64
}

func NewJobIDQueue(size int) (queue *JobIDQueue) {
	queue = new(JobIDQueue)
	queue.Queue = make([]JobIDPair, size)
	queue.Size = size
	queue.Pos = 0
	queue.nextID = 1
	return
}

// Add 为 poolJobID 分配一个数字 id，同一个任务重复添加时返回已有的 id
func (queue *JobIDQueue) Add(poolJobID string) uint64 {
	if id, ok := queue.FindByPoolJobID(poolJobID); ok {
		return id
	}
	id := queue.nextID
	queue.nextID++
	queue.Queue[queue.Pos] = JobIDPair{id, poolJobID}
	queue.Pos++
	if queue.Pos >= queue.Size {
		queue.Pos = 0
	}
	return id
}

func (queue *JobIDQueue) Find(jobID uint64) (string, bool) {
	if jobID == 0 {
		return "", false
	}
	for i := queue.Pos - 1; i >= 0; i-- {
		if queue.Queue[i].JobID == jobID {
			return queue.Queue[i].PoolJobID, true
		}
	}
	for i := queue.Size - 1; i >= queue.Pos; i-- {
		if queue.Queue[i].JobID == jobID {
			return queue.Queue[i].PoolJobID, true
		}
	}
	return "", false
}

func (queue *JobIDQueue) FindByPoolJobID(poolJobID string) (uint64, bool) {
	for i := range queue.Queue {
		if queue.Queue[i].JobID != 0 && queue.Queue[i].PoolJobID == poolJobID {
			return queue.Queue[i].JobID, true
		}
	}
	return 0, false
}
