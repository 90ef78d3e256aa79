package scanning

// listScanPrompt is sent with the image to every provider.
const listScanPrompt = `Analyze this handwritten shopping list.

1. Identify the Quantity, Item Name and Unit Price of every line. Leave out the unit price when none is written.
2. Correct spelling contextually for Nigerian retail products (e.g. "Semov" -> "Semovita", "Indomy" -> "Indomie").
3. Quantities are whole numbers. Prices are numbers in Naira without currency symbols or separators.

Return ONLY a valid JSON list in this exact format:
[{"qty": 1, "item": "Milk", "unit_price": 500}]

Do not include any text before or after the JSON and do not use markdown code blocks.`

// systemPrompt primes chat-style providers.
const systemPrompt = "You are an expert at reading handwritten shopping lists from small Nigerian retail shops. Read every line carefully and report exactly what was written."
