package mq

import (
	"log"
	"sync"

	"ntro-voting-backend/cache"
)

// Dispatcher 短信分发适配器。Redis可用时走队列异步发送，
// 否则降级为同步调用发送函数。业务侧只看到Send一个入口。
type Dispatcher struct {
	queue    *SMSQueue
	sender   func(phone, body string) error
	initOnce sync.Once
}

// NewDispatcher 创建分发适配器，sender是实际的短信发送实现
func NewDispatcher(sender func(phone, body string) error) *Dispatcher {
	return &Dispatcher{sender: sender}
}

// Initialize 初始化队列消费者（Redis可用时）
func (d *Dispatcher) Initialize() {
	d.initOnce.Do(func() {
		client, err := cache.GetClient()
		if err != nil {
			log.Printf("短信队列不可用，降级为直接发送: %v", err)
			return
		}

		d.queue = NewSMSQueue(client)
		d.queue.RegisterSender(d.sender)
		if err := d.queue.Start(); err != nil {
			log.Printf("启动短信队列失败，降级为直接发送: %v", err)
			d.queue = nil
			return
		}
		log.Println("短信分发队列初始化成功")
	})
}

// Send 分发一条短信。队列入队失败时回退到直接发送，
// 保证调用方拿到的错误只代表"彻底没发出去"。
func (d *Dispatcher) Send(phone, body string) error {
	if d.queue != nil {
		if err := d.queue.Enqueue(phone, body); err == nil {
			return nil
		} else {
			log.Printf("短信入队失败，回退直接发送: %v", err)
		}
	}
	return d.sender(phone, body)
}

// Close 停止队列消费者
func (d *Dispatcher) Close() {
	if d.queue != nil {
		d.queue.Stop()
	}
}
