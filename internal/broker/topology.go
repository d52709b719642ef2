package broker

// QueueSpec describes one durable work queue and whether rejected messages are
// routed to its dead letter queue.
type QueueSpec struct {
	Name       string
	DeadLetter bool
}

// Topology is the single description of every queue in the system. Publishers
// and consumers both declare from it so queue arguments never diverge, which
// the broker would otherwise reject with PRECONDITION_FAILED.
type Topology struct {
	Queues []QueueSpec
}

// DeadLetter reports the dead letter policy of the named queue. Unknown queues
// get no dead lettering.
func (t Topology) DeadLetter(name string) bool {
	for _, q := range t.Queues {
		if q.Name == name {
			return q.DeadLetter
		}
	}
	return false
}

// DeadLetterQueueName returns the name of the dead letter queue paired with name.
func DeadLetterQueueName(name string) string {
	return name + ".dlq"
}
