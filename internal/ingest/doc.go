// Package ingest 实现知识文档的异步入库流水线。
//
// 文档通过 Service 登记后进入队列，Processor 消费队列、
// 把内容切分成带重叠的分片并写入向量索引。队列与存储均可
// 在内存、Redis、RabbitMQ、MySQL 等实现间切换，失败的文档
// 会按照重试预算重新排队，耗尽后进入终态并触发告警。
package ingest
