package gemini

import "hiroai/roomsync/internal/llm"

const ProviderName = "gemini"

func init() {
	llm.RegisterProvider(ProviderName, func() (llm.Provider, error) {
		config, err := NewConfig()
		if err != nil {
			return nil, err
		}
		return NewClient(config)
	})
}
