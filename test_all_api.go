package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	baseURL      = "http://localhost:8080"
	webhookToken = "" // 与配置里 webhook.token 保持一致，为空则不带
)

// 手工冒烟脚本：起好 web 服务后 go run test_all_api.go 跑一遍主要接口
func main() {
	fmt.Println("==========================================")
	fmt.Println("    完整API测试")
	fmt.Println("==========================================")
	fmt.Println()

	// 1. 健康检查
	fmt.Println("1. 健康检查...")
	healthResp, err := httpGet(baseURL+"/api/health", "")
	if err != nil {
		fmt.Printf("   失败: %v\n", err)
		return
	}
	fmt.Printf("   成功: %v\n", healthResp)

	// 2. 登录获取token
	fmt.Println("\n2. 登录获取token...")
	loginResp, err := httpPost(baseURL+"/api/login", map[string]string{
		"username": "admin",
		"password": "admin123",
	})
	if err != nil {
		fmt.Printf("   登录失败: %v\n", err)
		return
	}
	tokenData, ok := loginResp["data"].(map[string]interface{})
	if !ok {
		fmt.Printf("   登录响应格式错误: %v\n", loginResp)
		return
	}
	token, _ := tokenData["token"].(string)
	fmt.Printf("   Token: %s\n", token)

	// 3. 投递一条 webhook 消息事件
	fmt.Println("\n3. 投递 webhook 消息事件...")
	extID := fmt.Sprintf("SMOKE-%d", time.Now().UnixNano())
	event := map[string]interface{}{
		"event_type":        "message.upsert",
		"platform_instance": "smoke-instance",
		"message_key": map[string]interface{}{
			"remote_id":   "08123456789",
			"from_me":     false,
			"external_id": extID,
		},
		"sender_display_name": "冒烟测试",
		"body":                "hello from smoke test",
		"body_type":           "text",
		"timestamp":           time.Now().Unix(),
	}
	upsertResp, err := httpPostWebhook(baseURL+"/webhook/whatsapp", event)
	if err != nil {
		fmt.Printf("   失败: %v\n", err)
	} else {
		fmt.Printf("   成功: %v\n", upsertResp)
	}

	// 4. 重复投递同一事件：应被重投抑制或判重拒绝，不产生新行
	fmt.Println("\n4. 重复投递同一事件...")
	dupResp, err := httpPostWebhook(baseURL+"/webhook/whatsapp", event)
	if err != nil {
		fmt.Printf("   失败: %v\n", err)
	} else {
		fmt.Printf("   成功: %v\n", dupResp)
	}

	// 5. 非法事件应返回 400
	fmt.Println("\n5. 投递非法事件（未知 event_type）...")
	_, err = httpPostWebhook(baseURL+"/webhook/whatsapp", map[string]interface{}{
		"event_type": "message.unknown",
	})
	if err != nil {
		fmt.Printf("   预期拒绝: %v\n", err)
	} else {
		fmt.Println("   异常：非法事件未被拒绝")
	}

	// 6. 会话列表
	fmt.Println("\n6. 会话列表...")
	convResp, err := httpGet(baseURL+"/api/conversations", token)
	if err != nil {
		fmt.Printf("   失败: %v\n", err)
	} else {
		fmt.Printf("   成功: %v\n", convResp)
	}

	// 7. 触发联系人历史同步
	fmt.Println("\n7. 触发历史同步...")
	syncResp, err := httpPost(baseURL+"/api/sync/08123456789", nil, token)
	if err != nil {
		fmt.Printf("   失败（MQ 未启动时为 503，属正常）: %v\n", err)
	} else {
		fmt.Printf("   成功: %v\n", syncResp)
	}

	// 8. 监控快照
	fmt.Println("\n8. 监控快照...")
	monitorResp, err := httpGet(baseURL+"/api/monitor", token)
	if err != nil {
		fmt.Printf("   失败: %v\n", err)
	} else {
		fmt.Printf("   成功: %v\n", monitorResp)
	}

	// 9. 测试 webhook 限流
	fmt.Println("\n9. 测试 webhook 限流...")
	fmt.Println("   发送300个快速请求...")
	rateLimitCount := 0
	successCount := 0
	for i := 0; i < 300; i++ {
		ev := map[string]interface{}{
			"event_type":        "message.upsert",
			"platform_instance": "smoke-instance",
			"message_key": map[string]interface{}{
				"remote_id":   "08123456789",
				"from_me":     false,
				"external_id": fmt.Sprintf("%s-burst-%d", extID, i),
			},
			"body":      "burst",
			"body_type": "text",
			"timestamp": time.Now().Unix(),
		}
		resp, err := httpPostWebhook(baseURL+"/webhook/whatsapp", ev)
		if err != nil {
			if err.Error() == "429" {
				rateLimitCount++
			}
			continue
		}
		code, ok := resp["code"].(float64)
		if ok && code == 0 {
			successCount++
		}
	}
	fmt.Printf("   成功: %d, 限流: %d\n", successCount, rateLimitCount)

	fmt.Println("\n==========================================")
	fmt.Println("测试完成！")
	fmt.Println("==========================================")
}

func httpGet(url, token string) (map[string]interface{}, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var result map[string]interface{}
	if err := json.Unmarshal(bodyBytes, &result); err != nil {
		return nil, fmt.Errorf("JSON解析失败: %v, 响应: %s", err, string(bodyBytes))
	}

	return result, nil
}

func httpPost(url string, body interface{}, token ...string) (map[string]interface{}, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest("POST", url, reqBody)
	if err != nil {
		return nil, err
	}
	if len(token) > 0 && token[0] != "" {
		req.Header.Set("Authorization", token[0])
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == 429 {
		return nil, fmt.Errorf("429")
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var result map[string]interface{}
	if err := json.Unmarshal(bodyBytes, &result); err != nil {
		return nil, fmt.Errorf("JSON解析失败: %v, 响应: %s", err, string(bodyBytes))
	}

	return result, nil
}

func httpPostWebhook(url string, body interface{}) (map[string]interface{}, error) {
	jsonData, _ := json.Marshal(body)
	req, err := http.NewRequest("POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	if webhookToken != "" {
		req.Header.Set("X-Webhook-Token", webhookToken)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == 429 {
		return nil, fmt.Errorf("429")
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var result map[string]interface{}
	if err := json.Unmarshal(bodyBytes, &result); err != nil {
		return nil, fmt.Errorf("JSON解析失败: %v, 响应: %s", err, string(bodyBytes))
	}

	return result, nil
}
