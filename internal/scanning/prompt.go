package scanning

// receiptPrompt is shared by every generative provider.
const receiptPrompt = `You are reading a photographed Japanese receipt. The image may contain more than one physical receipt.

For each receipt extract:
- "amount": the final amount paid (税込合計 / 合計 / お支払金額), as an integer number of yen. Never use change given (お釣り), cash tendered (お預り), subtotals or unit prices.
- "merchantName": the store or business name printed near the top.
- "date": the transaction date as YYYY-MM-DD. Convert era dates (令和 year + 2018, 平成 year + 1988).
- "category": one of "food", "transport", "communications", "supplies", "miscellaneous".
- "description": a short description of what was bought.
- "confidence": a number between 0 and 1 describing how sure you are.

Also return "ocrText": all text you can read, line by line.

Return ONLY a JSON object. For a single receipt:
{"amount": 1200, "merchantName": "...", "date": "YYYY-MM-DD", "category": "...", "description": "...", "confidence": 0.9, "ocrText": "..."}

For several receipts:
{"receipts": [{...}, {...}], "totalCount": 2, "ocrText": "..."}

Use null for any field you cannot read. Do not add any text before or after the JSON.`
