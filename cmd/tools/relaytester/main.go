// relaytester 是中继链路的手工测试工具：创建会话、建立 WebSocket 连接、
// 发送一条主持人消息并等待翻译结果回推。
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/qrchat-dev/qrchat/backend/internal/model/chat"
	"github.com/qrchat-dev/qrchat/backend/pkg/relayclient"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	apiURL := flag.String("api", "http://localhost:8080", "后端 HTTP 地址")
	relayURL := flag.String("relay", "ws://localhost:8080/ws/relay", "中继 WebSocket 地址")
	hostID := flag.String("host", "", "主持人 ID（服务启动日志里有默认值）")
	guestID := flag.String("guest", "", "访客 ID，留空则自动生成")
	language := flag.String("lang", "zh", "翻译目标语言")
	text := flag.String("text", "hello", "要发送的主持人消息")
	timeout := flag.Duration("timeout", 30*time.Second, "等待翻译结果的时间")

	flag.Parse()

	if *hostID == "" {
		flag.Usage()
		log.Fatal("请通过 -host 指定主持人 ID")
	}

	guest := *guestID
	if guest == "" {
		guest = fmt.Sprintf("tester-%d", time.Now().UnixNano())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	api := relayclient.NewAPI(*apiURL)

	session, isNew, err := api.CreateSession(ctx, *hostID, guest)
	if err != nil {
		log.Fatalf("创建会话失败: %v", err)
	}
	log.Printf("会话就绪 session=%s new=%v", session.ID, isNew)

	client := relayclient.NewClient(*relayURL)
	dispatcher := relayclient.NewDispatcher(client, api)
	client.SetFrameHandler(dispatcher.HandleFrame)
	engine := relayclient.NewSyncEngine(api, dispatcher, *language)

	client.OnStatusChange(func(status relayclient.Status) {
		log.Printf("中继状态: %s", status)
	})
	defer client.Close()

	client.Connect(session.ID, *language)

	history, err := engine.Load(ctx, session.ID)
	if err != nil {
		log.Fatalf("加载历史消息失败: %v", err)
	}
	for _, msg := range history {
		printMessage(msg)
	}

	cancelSub := engine.Subscribe(ctx, session.ID, printMessage)
	defer cancelSub()

	// Send 内部会通过 dispatcher 触发翻译；迟注册的回调由结果缓存补发
	msg, err := engine.Send(ctx, session.ID, *text, true)
	if err != nil {
		log.Fatalf("发送消息失败: %v", err)
	}
	log.Printf("消息已发送 id=%s content=%q", msg.ID, msg.Content)

	done := make(chan struct{})
	dispatcher.RegisterCallback(msg.ID, func(translated string) {
		engine.ApplyTranslation(msg.ID, translated, chat.TranslationCompleted)
		log.Printf("翻译完成 id=%s text=%q", msg.ID, translated)
		close(done)
	})

	if _, status, ok := dispatcher.Result(msg.ID); ok && status == relayclient.OutcomeError {
		log.Fatal("翻译失败，消息保持未翻译状态")
	}

	select {
	case <-done:
	case <-ctx.Done():
		log.Printf("等待超时，未收到翻译结果: %v", ctx.Err())
	}
}

func printMessage(msg chat.Message) {
	line := fmt.Sprintf("[%s] %s: %s", msg.CreatedAt.Local().Format("15:04:05"), msg.Sender, msg.Content)
	if msg.TranslatedContent != "" {
		line += fmt.Sprintf(" (译: %s)", msg.TranslatedContent)
	}
	log.Print(line)
}
