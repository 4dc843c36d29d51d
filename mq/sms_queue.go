package mq

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SMSMessage 待发送的短信
type SMSMessage struct {
	Phone     string `json:"phone"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
	MessageID string `json:"message_id"`
}

// 消息队列的队列名称常量
const (
	MainQueueName       = "sms_queue"       // 主队列
	ProcessingQueueName = "sms_processing"  // 处理中队列
	DeadLetterQueueName = "sms_dead_letter" // 死信队列
	RetriesHashName     = "sms_retries"     // 重试次数记录
)

// SMSQueue 基于Redis列表实现的短信发送队列。验证码下发是
// fire-and-forget，业务请求不等待短信网关。
type SMSQueue struct {
	client     *redis.Client
	ctx        context.Context
	sender     func(phone, body string) error
	mu         sync.Mutex // 保护isRunning，Start/Stop可能来自不同goroutine
	isRunning  bool
	stopChan   chan struct{}
	wg         sync.WaitGroup
	retryDelay time.Duration // 重试延迟
	maxRetries int           // 最大重试次数
}

// NewSMSQueue 创建短信队列
func NewSMSQueue(redisClient *redis.Client) *SMSQueue {
	return &SMSQueue{
		client:     redisClient,
		ctx:        context.Background(),
		stopChan:   make(chan struct{}),
		retryDelay: 30 * time.Second,
		maxRetries: 3,
	}
}

// RegisterSender 注册实际的短信发送函数（短信网关适配）
func (q *SMSQueue) RegisterSender(sender func(phone, body string) error) {
	q.sender = sender
}

// Enqueue 把短信放入队列
func (q *SMSQueue) Enqueue(phone, body string) error {
	msg := SMSMessage{
		Phone:     phone,
		Body:      body,
		Timestamp: time.Now().Unix(),
		MessageID: messageID(phone, body),
	}

	jsonData, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %v", err)
	}

	if err := q.client.LPush(q.ctx, MainQueueName, jsonData).Err(); err != nil {
		return fmt.Errorf("发送消息到队列失败: %v", err)
	}

	log.Printf("短信已入队: %s, 消息ID: %s", phone, msg.MessageID)
	return nil
}

// Start 启动消费者
func (q *SMSQueue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.sender == nil {
		return fmt.Errorf("发送函数未注册")
	}
	if q.isRunning {
		return nil
	}

	q.isRunning = true
	log.Println("短信队列消费者启动中...")

	q.wg.Add(1)
	go q.consumeLoop()

	return nil
}

// Stop 停止消费者并等待在途消息处理完成
func (q *SMSQueue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.isRunning {
		return
	}
	close(q.stopChan)
	q.wg.Wait()
	q.isRunning = false
	log.Println("短信队列消费者已停止")
}

// consumeLoop 主消费循环
func (q *SMSQueue) consumeLoop() {
	defer q.wg.Done()

	for {
		select {
		case <-q.stopChan:
			return
		default:
		}

		// 原子地从主队列搬到处理中队列，消费者崩溃时消息不丢
		data, err := q.client.BRPopLPush(q.ctx, MainQueueName, ProcessingQueueName, 2*time.Second).Result()
		if err != nil {
			if err != redis.Nil {
				log.Printf("读取短信队列失败: %v", err)
				time.Sleep(time.Second)
			}
			continue
		}

		var msg SMSMessage
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			log.Printf("反序列化短信消息失败: %v", err)
			q.client.LRem(q.ctx, ProcessingQueueName, 1, data)
			continue
		}

		if err := q.sender(msg.Phone, msg.Body); err != nil {
			log.Printf("发送短信失败: %s, %v", msg.Phone, err)
			q.handleFailure(data, msg)
			continue
		}

		// 发送成功，从处理中队列移除
		q.client.LRem(q.ctx, ProcessingQueueName, 1, data)
		q.client.HDel(q.ctx, RetriesHashName, msg.MessageID)
		log.Printf("短信发送成功: %s", msg.Phone)
	}
}

// handleFailure 发送失败的消息延迟重试，超过上限进入死信队列
func (q *SMSQueue) handleFailure(data string, msg SMSMessage) {
	q.client.LRem(q.ctx, ProcessingQueueName, 1, data)

	retries, err := q.client.HIncrBy(q.ctx, RetriesHashName, msg.MessageID, 1).Result()
	if err != nil {
		log.Printf("记录重试次数失败: %v", err)
	}

	if retries > int64(q.maxRetries) {
		log.Printf("短信超过最大重试次数，进入死信队列: %s", msg.MessageID)
		q.client.LPush(q.ctx, DeadLetterQueueName, data)
		q.client.HDel(q.ctx, RetriesHashName, msg.MessageID)
		return
	}

	go func() {
		select {
		case <-time.After(q.retryDelay):
			q.client.LPush(q.ctx, MainQueueName, data)
		case <-q.stopChan:
		}
	}()
}

// messageID 根据内容和当前分钟生成消息ID，同一分钟内重复入队可追踪
func messageID(phone, body string) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s|%s|%d", phone, body, time.Now().Unix()/60)))
	return fmt.Sprintf("%x", sum)
}
